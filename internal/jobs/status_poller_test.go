package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	status *services.InstanceStatus
	err    error
}

func (f *fakeController) Status() (*services.InstanceStatus, error) { return f.status, f.err }
func (f *fakeController) QRCode() (string, error)                 { return "", nil }
func (f *fakeController) Disconnect() error                       { return nil }

// fakeControllers hands out controllers by instance id; unknown ids have no
// controllable gateway.
type fakeControllers map[string]*fakeController

func (f fakeControllers) Controller(number *models.WhatsAppNumber) (services.InstanceController, error) {
	if c, ok := f[number.InstanceID]; ok {
		return c, nil
	}
	return nil, errors.New("no controller")
}

func TestPollOnceRefreshesNumbers(t *testing.T) {
	store := storage.NewMemoryStore()
	online, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "online", Token: "t"})
	require.NoError(t, err)
	offline, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "offline", Token: "t", IsConnected: true})
	require.NoError(t, err)
	broken, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "broken", Token: "t", IsConnected: true})
	require.NoError(t, err)
	twilio, err := store.CreateNumber(&models.WhatsAppNumber{InstanceID: "twilio", Token: "t", Provider: models.ProviderTwilio})
	require.NoError(t, err)

	poller := NewStatusPoller(store, fakeControllers{
		"online":  {status: &services.InstanceStatus{Connected: true, Phone: "5511988887777"}},
		"offline": {status: &services.InstanceStatus{Connected: false}},
		"broken":  {err: errors.New("timeout")},
	}, "@every 5m")
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	poller.now = func() time.Time { return seen }

	poller.PollOnce()

	got, _ := store.GetNumber(online.ID)
	assert.True(t, got.IsConnected)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, "5511988887777", *got.PhoneNumber)
	require.NotNil(t, got.LastSeen)
	assert.True(t, seen.Equal(*got.LastSeen))

	got, _ = store.GetNumber(offline.ID)
	assert.False(t, got.IsConnected)
	assert.Nil(t, got.PhoneNumber)

	// failures leave the last known state alone
	got, _ = store.GetNumber(broken.ID)
	assert.True(t, got.IsConnected)
	assert.Nil(t, got.LastSeen)

	got, _ = store.GetNumber(twilio.ID)
	assert.Nil(t, got.LastSeen)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	poller := NewStatusPoller(storage.NewMemoryStore(), fakeControllers{}, "not a schedule")
	assert.Error(t, poller.Start())
}

func TestStartStop(t *testing.T) {
	poller := NewStatusPoller(storage.NewMemoryStore(), fakeControllers{}, "*/30 * * * * *")
	require.NoError(t, poller.Start())
	require.NoError(t, poller.Start())
	poller.Stop()
	poller.Stop()
}
