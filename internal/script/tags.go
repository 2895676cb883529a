/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strconv"
	"strings"
)

// Values supplies data for tag injection.
type Values interface {
	TempVal(slot int) string // 1-based
	PlayerName() string
}

// Inject replaces [tempVal1]..[tempVal9] and [playerName] in a raw line.
// Unknown tags are left untouched.
func Inject(raw string, v Values) string {
	if v == nil || !strings.Contains(raw, "[") {
		return raw
	}
	pairs := make([]string, 0, 20)
	for i := 1; i <= 9; i++ {
		pairs = append(pairs, "[tempVal"+strconv.Itoa(i)+"]", v.TempVal(i))
	}
	pairs = append(pairs, "[playerName]", v.PlayerName())
	return strings.NewReplacer(pairs...).Replace(raw)
}
