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

package main

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sabouaram/pwnet/packet/httpmsg"
	"github.com/sabouaram/pwnet/pwlog"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPathInsertsStageSuffix(t *testing.T) {
	require.Equal(t, "pwhttpmirror.stage.ini", resolveConfigPath("pwhttpmirror.ini", true))
	require.Equal(t, "pwhttpmirror.ini", resolveConfigPath("pwhttpmirror.ini", false))
}

func TestRotatePolicyForSize(t *testing.T) {
	require.Equal(t, pwlog.RotateBySize, rotatePolicyFor("SIZE").By)
}

func TestMirrorResponseCopiesRequestBody(t *testing.T) {
	req := httpmsg.Request{Req: &http.Request{
		Method:        "POST",
		Body:          io.NopCloser(strings.NewReader("hello world")),
		ContentLength: 11,
	}}

	resp := mirrorResponse(req)
	require.Equal(t, http.StatusOK, resp.Resp.StatusCode)

	body, err := io.ReadAll(resp.Resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
	require.Equal(t, int64(len(body)), resp.Resp.ContentLength)
}

func TestMirrorResponseHandlesEmptyBody(t *testing.T) {
	req := httpmsg.Request{Req: &http.Request{Method: "GET"}}
	resp := mirrorResponse(req)

	body, err := io.ReadAll(resp.Resp.Body)
	require.NoError(t, err)
	require.Empty(t, body)
}
