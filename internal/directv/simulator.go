package directv

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Simulator is an http.RoundTripper that answers like a receiver with one
// Genie client. It backs test mode in the CLI, the terminal remote and the hub.
type Simulator struct {
	mu      sync.Mutex
	clients map[string]*simulatedTuner
	started time.Time
}

type simulatedTuner struct {
	name    string
	standby bool
	major   int
	minor   int
}

type simulatedChannel struct {
	callsign string
	title    string
	episode  string
	rating   string
	duration int
}

var simulatorGuide = map[int]simulatedChannel{
	202: {callsign: "CNNHD", title: "CNN Newsroom", rating: "TV-G", duration: 3600},
	206: {callsign: "ESPNHD", title: "SportsCenter", rating: "TV-PG", duration: 3600},
	231: {callsign: "FOODHD", title: "Tyler's Ultimate", episode: "Spaghetti and Clam Sauce", rating: "No Rating", duration: 1791},
	312: {callsign: "HALLHD", title: "Snow Bride", rating: "TV-G", duration: 7200},
}

// SimulatorClientAddr is the Genie client known to the simulator
const SimulatorClientAddr = "2CA17D1CD30X"

// NewSimulator creates a simulator with the host tuner on channel 231
func NewSimulator() *Simulator {
	return &Simulator{
		clients: map[string]*simulatedTuner{
			HostClientAddr:      {name: "Host", major: 231, minor: NoMinorChannel},
			SimulatorClientAddr: {name: "Client", major: 312, minor: NoMinorChannel},
		},
		started: time.Now().UTC(),
	}
}

// RoundTrip implements http.RoundTripper
func (s *Simulator) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if req.Body != nil {
		req.Body.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]
	query := req.URL.Query()

	switch {
	case strings.HasSuffix(req.URL.Path, string(VersionEndpoint)):
		return s.reply(req, http.StatusOK, map[string]any{
			"accessCardId":       "0021-1495-6572",
			"receiverId":         "0288 7745 5858",
			"stbSoftwareVersion": "0x4ed7",
			"systemTime":         time.Now().Unix(),
			"version":            "1.2",
		})

	case strings.HasSuffix(req.URL.Path, string(LocationsEndpoint)):
		return s.reply(req, http.StatusOK, map[string]any{
			"locations": []map[string]any{
				{"clientAddr": HostClientAddr, "locationName": s.clients[HostClientAddr].name},
				{"clientAddr": SimulatorClientAddr, "locationName": s.clients[SimulatorClientAddr].name},
			},
		})
	}

	tuner, ok := s.clients[clientAddr(query.Get("clientAddr"))]
	if !ok {
		return s.reply(req, http.StatusBadRequest, map[string]any{
			"status": map[string]any{"code": 400, "msg": "Invalid client address."},
		})
	}

	switch path {
	case "mode":
		mode := ModeActive
		if tuner.standby {
			mode = ModeStandby
		}
		return s.reply(req, http.StatusOK, map[string]any{"mode": mode})

	case "getTuned":
		if tuner.standby {
			return s.reply(req, http.StatusForbidden, map[string]any{
				"status": map[string]any{"code": 403, "msg": "Forbidden. The receiver is in standby."},
			})
		}
		return s.reply(req, http.StatusOK, s.program(tuner))

	case "tune":
		major, err := strconv.Atoi(query.Get("major"))
		if err != nil {
			return s.reply(req, http.StatusBadRequest, map[string]any{
				"status": map[string]any{"code": 400, "msg": "Invalid channel."},
			})
		}
		minor, err := strconv.Atoi(query.Get("minor"))
		if err != nil {
			minor = NoMinorChannel
		}
		tuner.major, tuner.minor = major, minor
		return s.reply(req, http.StatusOK, map[string]any{"status": map[string]any{"code": 200, "msg": "OK."}})

	case "processKey":
		key := query.Get("key")
		if _, valid := validRemoteKeys[RemoteKey(key)]; !valid {
			return s.reply(req, http.StatusBadRequest, map[string]any{
				"status": map[string]any{"code": 400, "msg": "Invalid key."},
			})
		}
		s.press(tuner, RemoteKey(key))
		return s.reply(req, http.StatusOK, map[string]any{
			"hold":   query.Get("hold"),
			"key":    key,
			"status": map[string]any{"code": 200, "msg": "OK."},
		})
	}

	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     http.StatusText(http.StatusNotFound),
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("Not Found")),
		Request:    req,
	}, nil
}

func (s *Simulator) press(tuner *simulatedTuner, key RemoteKey) {
	switch key {
	case KeyPower:
		tuner.standby = !tuner.standby
	case KeyPowerOn:
		tuner.standby = false
	case KeyPowerOff:
		tuner.standby = true
	case KeyChannelUp:
		tuner.major++
		tuner.minor = NoMinorChannel
	case KeyChannelDown:
		if tuner.major > 1 {
			tuner.major--
		}
		tuner.minor = NoMinorChannel
	}
}

func (s *Simulator) program(tuner *simulatedTuner) map[string]any {
	channel, ok := simulatorGuide[tuner.major]
	if !ok {
		channel = simulatedChannel{
			callsign: fmt.Sprintf("CH%d", tuner.major),
			title:    "Paid Programming",
			rating:   "No Rating",
			duration: 1800,
		}
	}

	elapsed := int(time.Since(s.started).Seconds()) % channel.duration
	program := map[string]any{
		"callsign":    channel.callsign,
		"major":       tuner.major,
		"minor":       tuner.minor,
		"duration":    channel.duration,
		"offset":      elapsed,
		"startTime":   time.Now().Unix() - int64(elapsed),
		"title":       channel.title,
		"rating":      channel.rating,
		"programId":   strconv.Itoa(4400000 + tuner.major),
		"stationId":   3900000 + tuner.major,
		"isOffAir":    false,
		"isPclocked":  3,
		"isPpv":       false,
		"isRecording": false,
		"isVod":       false,
		"status":      map[string]any{"code": 200, "msg": "OK."},
	}
	if channel.episode != "" {
		program["episodeTitle"] = channel.episode
	}
	return program
}

func (s *Simulator) reply(req *http.Request, status int, body map[string]any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        http.Header{"Content-Type": {"application/json; charset=UTF-8"}},
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}, nil
}
