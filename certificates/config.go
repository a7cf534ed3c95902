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

// Package certificates builds the *tls.Config an HTTPS/TLS listener uses
// (curve list, cipher list, certificate list, min/max protocol version)
// and drives the non-blocking accept-to-handshake state machine the
// listener package's TLSStarter interface expects.
package certificates

import (
	"crypto/tls"
	"errors"
	"fmt"

	libval "github.com/go-playground/validator/v10"
)

// Config mirrors the curve/cipher/cert/version knobs a TLS listener
// needs, validated with struct tags the way the pack's own certificate
// configuration does.
type Config struct {
	CurveList  []tls.CurveID       `mapstructure:"curveList" validate:"omitempty"`
	CipherList []uint16            `mapstructure:"cipherList" validate:"omitempty"`
	Certs      []tls.Certificate   `mapstructure:"-" validate:"required,min=1"`
	VersionMin uint16              `mapstructure:"versionMin" validate:"omitempty"`
	VersionMax uint16              `mapstructure:"versionMax" validate:"omitempty"`
	ClientAuth tls.ClientAuthType  `mapstructure:"authClient" validate:"omitempty"`
}

// Validate checks the config with go-playground/validator's struct tags,
// collecting every failing field into one error.
func (c *Config) Validate() error {
	if err := libval.New().Struct(c); err != nil {
		if verrs, ok := err.(libval.ValidationErrors); ok {
			msg := "certificate config invalid:"
			for _, fe := range verrs {
				msg += fmt.Sprintf(" %s failed '%s';", fe.StructNamespace(), fe.ActualTag())
			}
			return errors.New(msg)
		}
		return err
	}
	return nil
}

// TLSConfig builds a *tls.Config from c, defaulting VersionMin to TLS 1.2
// when unset.
func (c *Config) TLSConfig() *tls.Config {
	versionMin := c.VersionMin
	if versionMin == 0 {
		versionMin = tls.VersionTLS12
	}

	return &tls.Config{
		Certificates:     c.Certs,
		CurvePreferences: c.CurveList,
		CipherSuites:     c.CipherList,
		MinVersion:       versionMin,
		MaxVersion:       c.VersionMax,
		ClientAuth:       c.ClientAuth,
	}
}
