package directv

import (
	"strings"
	"time"
	"unicode"
)

// Program types
const (
	ProgramTypeTVShow = "tvshow"
	ProgramTypeMusic  = "music"
	ProgramTypeMovie  = "movie"
)

// Info identifies a receiver
type Info struct {
	Brand        string     `json:"brand"`
	ReceiverID   string     `json:"receiver_id"`
	Version      string     `json:"version"`
	AccessCardID string     `json:"access_card_id,omitempty"`
	APIVersion   string     `json:"api_version,omitempty"`
	SystemTime   *time.Time `json:"system_time,omitempty"`
}

// InfoFromMap builds Info from an info/getVersion payload
func InfoFromMap(data map[string]any) Info {
	info := Info{
		Brand:        Brand,
		ReceiverID:   stripWhitespace(stringField(data, "receiverId", "")),
		Version:      stringField(data, "stbSoftwareVersion", "Unknown"),
		AccessCardID: stringField(data, "accessCardId", ""),
		APIVersion:   stringField(data, "version", ""),
		SystemTime:   unixField(data, "systemTime"),
	}
	return info
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Location is a tuner known to the receiver: the host itself or a Genie client
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Client  bool   `json:"client"`
}

// LocationFromMap builds a Location from one info/getLocations entry
func LocationFromMap(data map[string]any) Location {
	address := stringField(data, "clientAddr", "")
	return Location{
		Name:    stringField(data, "locationName", "Receiver"),
		Address: address,
		Client:  address != HostClientAddr,
	}
}

// Program describes the asset a tuner is playing
type Program struct {
	Channel      string     `json:"channel"`
	ChannelName  string     `json:"channel_name"`
	StationID    string     `json:"station_id,omitempty"`
	OnDemand     bool       `json:"ondemand"`
	Recorded     bool       `json:"recorded"`
	Recording    bool       `json:"recording"`
	Viewed       bool       `json:"viewed"`
	ProgramID    string     `json:"program_id"`
	ProgramType  string     `json:"program_type"`
	Duration     int        `json:"duration"`
	Title        string     `json:"title"`
	EpisodeTitle string     `json:"episode_title,omitempty"`
	MusicTitle   string     `json:"music_title,omitempty"`
	MusicAlbum   string     `json:"music_album,omitempty"`
	MusicArtist  string     `json:"music_artist,omitempty"`
	Partial      bool       `json:"partial"`
	PayPerView   bool       `json:"payperview"`
	Position     int        `json:"position"`
	Purchased    bool       `json:"purchased"`
	Rating       string     `json:"rating"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	UniqueID     string     `json:"unique_id,omitempty"`
}

// ProgramFromMap builds a Program from a tv/getTuned payload
func ProgramFromMap(data map[string]any) Program {
	music := mapField(data, "music")

	episodeTitle := stringField(data, "episodeTitle", "")
	musicTitle := stringField(music, "title", "")
	uniqueID := stringField(data, "uniqueId", "")

	programType := ProgramTypeMovie
	if _, ok := lookup(data, "episodeTitle"); ok {
		programType = ProgramTypeTVShow
	} else if _, ok := lookup(music, "title"); ok {
		programType = ProgramTypeMusic
	}

	_, recorded := lookup(data, "uniqueId")

	return Program{
		Channel:      CombineChannelNumber(intField(data, "major", 0), intField(data, "minor", NoMinorChannel)),
		ChannelName:  stringField(data, "callsign", ""),
		StationID:    stringField(data, "stationId", ""),
		OnDemand:     boolField(data, "isVod"),
		Recorded:     recorded,
		Recording:    boolField(data, "isRecording"),
		Viewed:       boolField(data, "isViewed"),
		ProgramID:    stringField(data, "programId", ""),
		ProgramType:  programType,
		Duration:     intField(data, "duration", 0),
		Title:        stringField(data, "title", ""),
		EpisodeTitle: episodeTitle,
		MusicTitle:   musicTitle,
		MusicAlbum:   stringField(music, "cd", ""),
		MusicArtist:  stringField(music, "by", ""),
		Partial:      boolField(data, "isPartial"),
		PayPerView:   boolField(data, "isPpv"),
		Position:     intField(data, "offset", 0),
		Purchased:    boolField(data, "isPurchased"),
		Rating:       stringField(data, "rating", ""),
		StartTime:    unixField(data, "startTime"),
		UniqueID:     uniqueID,
	}
}

// State is one client's condition at a point in time
type State struct {
	Authorized bool      `json:"authorized"`
	Available  bool      `json:"available"`
	Standby    bool      `json:"standby"`
	Program    *Program  `json:"program"`
	At         time.Time `json:"at"`
}

// Status is the coarse condition reported by Receiver.Status
type Status string

const (
	StatusActive       Status = "active"
	StatusStandby      Status = "standby"
	StatusUnavailable  Status = "unavailable"
	StatusUnauthorized Status = "unauthorized"
)

// Status maps the state flags onto the coarse condition
func (s State) Status() Status {
	switch {
	case !s.Authorized:
		return StatusUnauthorized
	case !s.Available:
		return StatusUnavailable
	case s.Standby:
		return StatusStandby
	default:
		return StatusActive
	}
}

// Device is the cached receiver snapshot: identity plus tuner locations
type Device struct {
	Info      Info       `json:"info"`
	Locations []Location `json:"locations"`
}

// NewDevice requires non-empty "info" and "locations" sections
func NewDevice(data map[string]any) (*Device, error) {
	if len(mapField(data, "info")) == 0 || len(listField(data, "locations")) == 0 {
		return nil, newError(msgIncompleteDevice, nil)
	}

	device := &Device{}
	device.UpdateFromMap(data)
	return device, nil
}

// UpdateFromMap refreshes sections present in data and leaves the rest untouched
func (d *Device) UpdateFromMap(data map[string]any) *Device {
	if info := mapField(data, "info"); len(info) > 0 {
		d.Info = InfoFromMap(info)
	}

	if entries := listField(data, "locations"); len(entries) > 0 {
		locations := make([]Location, 0, len(entries))
		for _, entry := range entries {
			locations = append(locations, LocationFromMap(entry))
		}
		d.Locations = locations
	}

	return d
}

// Location returns the location with the given client address
func (d *Device) Location(address string) (Location, bool) {
	for _, location := range d.Locations {
		if location.Address == address {
			return location, true
		}
	}
	return Location{}, false
}
