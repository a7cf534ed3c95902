/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package instance

// JobManager runs bounded background work off the main thread and
// communicates results back through a thread-safe queue drained once per
// tick (spec §5 "Threading": "any such work communicates results back via
// a thread-safe queue that is drained on the main thread at the end of
// each tick"). Submit never blocks the main thread; the work itself runs
// in its own goroutine, and only the result delivery is synchronized
// back onto the tick.
type JobManager struct {
	results chan func()
}

// NewJobManager creates an empty JobManager with reasonable queue depth.
func NewJobManager() *JobManager {
	return &JobManager{results: make(chan func(), 256)}
}

// Submit runs work in its own goroutine; once it completes, onDone is
// queued for delivery on the main thread at the next Drain.
func (j *JobManager) Submit(work func() interface{}, onDone func(result interface{})) {
	go func() {
		result := work()
		j.results <- func() { onDone(result) }
	}()
}

// Drain delivers every completed job's callback on the calling
// (main-loop) goroutine, non-blocking once the queue runs dry.
func (j *JobManager) Drain() {
	for {
		select {
		case cb := <-j.results:
			cb()
		default:
			return
		}
	}
}
