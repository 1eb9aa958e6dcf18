package jobs

import (
	"log"
	"sync"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/robfig/cron/v3"
)

// StatusPoller periodically asks every gateway line for its connection state
type StatusPoller struct {
	store       storage.Store
	controllers services.ControllerFactory
	schedule    string
	cron        *cron.Cron
	now         func() time.Time

	mu        sync.Mutex
	isRunning bool
}

// NewStatusPoller creates the poller. schedule accepts cron expressions with
// optional seconds and descriptors like "@every 5m".
func NewStatusPoller(store storage.Store, controllers services.ControllerFactory, schedule string) *StatusPoller {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &StatusPoller{
		store:       store,
		controllers: controllers,
		schedule:    schedule,
		cron:        cron.New(cron.WithParser(parser)),
		now:         time.Now,
	}
}

// Start registers the poll and starts the scheduler
func (p *StatusPoller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		log.Println("Status poller already running")
		return nil
	}
	if _, err := p.cron.AddFunc(p.schedule, p.PollOnce); err != nil {
		return err
	}
	p.cron.Start()
	p.isRunning = true
	log.Printf("⏱️  Status poller started (%s)", p.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running poll to finish
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return
	}
	<-p.cron.Stop().Done()
	p.isRunning = false
	log.Println("Status poller stopped")
}

// PollOnce refreshes the connection state of every number that has a
// controllable gateway. Numbers without one are skipped.
func (p *StatusPoller) PollOnce() {
	numbers, err := p.store.ListNumbers()
	if err != nil {
		log.Printf("Error listing numbers for status poll: %v", err)
		return
	}

	updated := 0
	for _, number := range numbers {
		if p.refresh(number) {
			updated++
		}
	}
	if updated > 0 {
		log.Printf("⏱️  Status poll refreshed %d number(s)", updated)
	}
}

func (p *StatusPoller) refresh(number *models.WhatsAppNumber) bool {
	controller, err := p.controllers.Controller(number)
	if err != nil {
		return false
	}
	status, err := controller.Status()
	if err != nil {
		log.Printf("⚠️  Status of %s (%s): %v", number.Name, number.InstanceID, err)
		return false
	}

	number.MarkSeen(status.Connected, p.now())
	if status.Phone != "" {
		phone := status.Phone
		number.PhoneNumber = &phone
	}
	if err := p.store.UpdateNumber(number); err != nil {
		log.Printf("Error saving status of %s: %v", number.ID, err)
		return false
	}
	return true
}
