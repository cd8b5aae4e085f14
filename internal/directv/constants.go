// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package directv

import (
	"fmt"
	"strings"
	"time"
)

// Version of the client, reported in the default User-Agent
const Version = "0.3.0"

// Connection defaults
const (
	DefaultPort      = 8080
	DefaultBasePath  = "/"
	DefaultTimeout   = 8 * time.Second
	DefaultUserAgent = "dtvctl/" + Version

	// HostClientAddr addresses the receiver itself rather than a Genie client
	HostClientAddr = "0"

	// NoMinorChannel is the wire value meaning "no sub-channel"
	NoMinorChannel = 65535

	// Brand reported by every Info record
	Brand = "DirecTV"

	acceptHeader = "application/json, text/plain, */*"
)

// Endpoint is a receiver API path relative to the base path
type Endpoint string

// Receiver API endpoints
const (
	VersionEndpoint    Endpoint = "info/getVersion"
	LocationsEndpoint  Endpoint = "info/getLocations"
	ModeEndpoint       Endpoint = "info/mode"
	TunedEndpoint      Endpoint = "tv/getTuned"
	TuneEndpoint       Endpoint = "tv/tune"
	ProcessKeyEndpoint Endpoint = "remote/processKey"
)

// Mode values reported by info/mode
const (
	ModeActive  = 0
	ModeStandby = 1
)

// RemoteKey is a key name accepted by remote/processKey
type RemoteKey string

// Remote control keys
const (
	KeyPower    RemoteKey = "power"
	KeyPowerOn  RemoteKey = "poweron"
	KeyPowerOff RemoteKey = "poweroff"
	KeyFormat   RemoteKey = "format"

	// Transport
	KeyPause   RemoteKey = "pause"
	KeyRewind  RemoteKey = "rew"
	KeyReplay  RemoteKey = "replay"
	KeyStop    RemoteKey = "stop"
	KeyAdvance RemoteKey = "advance"
	KeyFFwd    RemoteKey = "ffwd"
	KeyRecord  RemoteKey = "record"
	KeyPlay    RemoteKey = "play"

	// Menus
	KeyGuide  RemoteKey = "guide"
	KeyActive RemoteKey = "active"
	KeyList   RemoteKey = "list"
	KeyExit   RemoteKey = "exit"
	KeyBack   RemoteKey = "back"
	KeyMenu   RemoteKey = "menu"
	KeyInfo   RemoteKey = "info"

	// Navigation
	KeyUp     RemoteKey = "up"
	KeyDown   RemoteKey = "down"
	KeyLeft   RemoteKey = "left"
	KeyRight  RemoteKey = "right"
	KeySelect RemoteKey = "select"

	// Colour keys
	KeyRed    RemoteKey = "red"
	KeyGreen  RemoteKey = "green"
	KeyYellow RemoteKey = "yellow"
	KeyBlue   RemoteKey = "blue"

	// Channels
	KeyChannelUp   RemoteKey = "chanup"
	KeyChannelDown RemoteKey = "chandown"
	KeyPrevious    RemoteKey = "prev"

	// Keypad
	Key0     RemoteKey = "0"
	Key1     RemoteKey = "1"
	Key2     RemoteKey = "2"
	Key3     RemoteKey = "3"
	Key4     RemoteKey = "4"
	Key5     RemoteKey = "5"
	Key6     RemoteKey = "6"
	Key7     RemoteKey = "7"
	Key8     RemoteKey = "8"
	Key9     RemoteKey = "9"
	KeyDash  RemoteKey = "dash"
	KeyEnter RemoteKey = "enter"
)

var remoteKeys = []RemoteKey{
	KeyPower, KeyPowerOn, KeyPowerOff, KeyFormat,
	KeyPause, KeyRewind, KeyReplay, KeyStop, KeyAdvance, KeyFFwd, KeyRecord, KeyPlay,
	KeyGuide, KeyActive, KeyList, KeyExit, KeyBack, KeyMenu, KeyInfo,
	KeyUp, KeyDown, KeyLeft, KeyRight, KeySelect,
	KeyRed, KeyGreen, KeyYellow, KeyBlue,
	KeyChannelUp, KeyChannelDown, KeyPrevious,
	Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9,
	KeyDash, KeyEnter,
}

var validRemoteKeys = func() map[RemoteKey]struct{} {
	keys := make(map[RemoteKey]struct{}, len(remoteKeys))
	for _, key := range remoteKeys {
		keys[key] = struct{}{}
	}
	return keys
}()

// RemoteKeys returns every valid remote key in remote-layout order
func RemoteKeys() []RemoteKey {
	keys := make([]RemoteKey, len(remoteKeys))
	copy(keys, remoteKeys)
	return keys
}

// ParseRemoteKey validates a key name case-insensitively
func ParseRemoteKey(key string) (RemoteKey, error) {
	normalized := RemoteKey(strings.ToLower(key))
	if _, ok := validRemoteKeys[normalized]; !ok {
		return "", newError(fmt.Sprintf("Remote key is invalid: %s", key), nil)
	}
	return normalized, nil
}
