/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package console

import (
	"context"
	"errors"
	"io"
	"time"
)

// Scheduler is the engine surface Run drives.
type Scheduler interface {
	Control
	Run(ctx context.Context, interval time.Duration) error
}

// Run ticks e every interval and feeds in to it until the story ends, the
// input is closed, or ctx is cancelled. It returns once e.Run has returned.
func Run(ctx context.Context, e Scheduler, c *Console, in io.Reader, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineErr := make(chan error, 1)
	go func() { engineErr <- e.Run(ctx, interval) }()

	inputDone := make(chan error, 1)
	go func() { inputDone <- c.ReadInput(ctx, in, e) }()

	var err error
	engineDone := false
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-c.Done():
	case err = <-inputDone:
		if err == nil {
			err = io.EOF
		}
	case err = <-engineErr:
		engineDone = true
	}
	cancel()
	// the engine must be idle before the caller touches it again
	if !engineDone {
		<-engineErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
