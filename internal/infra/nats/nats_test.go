package natsclient

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerForm/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreams struct {
	existing map[string]bool
	added    []*nats.StreamConfig
	infoErr  error
	addErr   error
}

func (f *fakeStreams) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.existing[stream] {
		return &nats.StreamInfo{}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeStreams) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added = append(f.added, cfg)
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestEnsureStream_CreatesMissingStream(t *testing.T) {
	js := &fakeStreams{}

	require.NoError(t, EnsureStream(js, "MAIL", []string{"mail.outbound"}, 1024))
	require.Len(t, js.added, 1)
	assert.Equal(t, "MAIL", js.added[0].Name)
	assert.Equal(t, []string{"mail.outbound"}, js.added[0].Subjects)
}

func TestEnsureStream_KeepsExistingStream(t *testing.T) {
	js := &fakeStreams{existing: map[string]bool{"MAIL": true}}

	require.NoError(t, EnsureStream(js, "MAIL", []string{"mail.outbound"}, 1024))
	assert.Empty(t, js.added)
}

func TestEnsureStream_PropagatesFailure(t *testing.T) {
	js := &fakeStreams{addErr: errors.New("insufficient resources")}

	err := EnsureStream(js, "MAIL", []string{"mail.outbound"}, 1024)
	assert.ErrorContains(t, err, "create stream MAIL")
}

func TestEnsureStream_LookupFailureIsNotMissing(t *testing.T) {
	js := &fakeStreams{infoErr: nats.ErrTimeout}

	err := EnsureStream(js, "MAIL", []string{"mail.outbound"}, 1024)
	assert.ErrorIs(t, err, nats.ErrTimeout)
	assert.Empty(t, js.added)
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "nats://localhost:4222", buildURL(config.NATSConfig{}))
	assert.Equal(t, "nats://mq:4333", buildURL(config.NATSConfig{Host: "mq", Port: 4333}))
}
