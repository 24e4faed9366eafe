/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "scriptdialogue"
	keyringDSN     = "postgres-dsn"
)

// secretStore is the subset of the OS keychain used here; tests swap it for a map.
type secretStore interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, secret string) error    { return keyring.Set(service, user, secret) }
func (osKeyring) Delete(service, user string) error         { return keyring.Delete(service, user) }

var tokenStore secretStore = osKeyring{}

// LookupDSN returns the Postgres DSN from SDX_PG_DSN, falling back to the OS keychain.
// It returns "" when neither holds one.
func LookupDSN() string {
	if dsn := strings.TrimSpace(os.Getenv(EnvPGDSN)); dsn != "" {
		return dsn
	}
	dsn, _ := tokenStore.Get(keyringService, keyringDSN)
	return dsn
}

// SaveDSN stores the Postgres DSN in the OS keychain. An empty dsn removes it.
func SaveDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		err := tokenStore.Delete(keyringService, keyringDSN)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return tokenStore.Set(keyringService, keyringDSN, dsn)
}
