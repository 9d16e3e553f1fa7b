package pion

import (
	"context"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// Capturer opens local camera/microphone streams through
// pion/mediadevices. It only captures; the media path itself is outside
// this codebase, connection status on a call is just a label.
type Capturer struct{}

func NewCapturer() *Capturer {
	return &Capturer{}
}

// Acquire opens the devices a call of type t needs. GetUserMedia fails as
// a unit if either track can't be opened, so a video call falls back to
// audio-only before giving up: a busy camera should not kill the
// microphone.
func (c *Capturer) Acquire(ctx context.Context, t domain.CallType) (port.Capture, error) {
	attempts := []struct {
		video bool
		label string
	}{
		{t == domain.CallVideo, "video+audio"},
		{false, "audio-only"},
	}
	if t != domain.CallVideo {
		attempts = attempts[1:]
	}

	var lastErr error
	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{
			Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		}
		if a.video {
			constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
				// Cap the resolution; a call preview does not need more
				// and large frames slow capture down.
				mc.Width = prop.IntRanged{Max: 1280}
				mc.Height = prop.IntRanged{Max: 720}
			}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Err(err).Str("attempt", a.label).Msg("GetUserMedia failed")
			lastErr = err
			continue
		}

		for _, track := range stream.GetTracks() {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Debug().Err(err).Msg("Local track ended")
				}
			})
			if track.Kind() == webrtc.RTPCodecTypeVideo {
				log.Info().Str("track_id", track.ID()).Msg("Camera capture started")
			}
		}
		return &capture{stream: stream}, nil
	}

	// The device layer refusing every combination is surfaced as a
	// permission problem; the session degrades instead of ending.
	log.Warn().Err(lastErr).Msg("All capture attempts failed")
	return nil, port.ErrPermissionDenied
}

type capture struct {
	stream mediadevices.MediaStream
}

func (c *capture) Release() {
	for _, track := range c.stream.GetTracks() {
		if err := track.Close(); err != nil {
			log.Debug().Err(err).Str("track_id", track.ID()).Msg("Error closing track")
		}
	}
}
