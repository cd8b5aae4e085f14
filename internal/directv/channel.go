package directv

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChannelNumber splits "231" or "231-1" into the major/minor pair used on the wire.
// A channel without a sub-channel gets the minor "65535".
func ParseChannelNumber(channel string) (major, minor string) {
	parts := strings.Split(channel, "-")
	if len(parts) != 2 {
		return channel, strconv.Itoa(NoMinorChannel)
	}
	return parts[0], parts[1]
}

// CombineChannelNumber is the inverse of ParseChannelNumber.
func CombineChannelNumber(major, minor int) string {
	if minor == NoMinorChannel {
		return strconv.Itoa(major)
	}
	return fmt.Sprintf("%d-%d", major, minor)
}
