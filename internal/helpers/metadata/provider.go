package metadata

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Info identifies one runtime process in logs and health responses.
type Info struct {
	BootID   string    `json:"boot_id"`
	Launched time.Time `json:"launched"`
	Hostname string    `json:"hostname"`
	PID      int       `json:"pid"`
}

// Provider fixes the process identity on first use.
type Provider struct {
	once sync.Once
	info Info
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Info() Info {
	p.once.Do(p.initialize)
	return p.info
}

func (p *Provider) BootID() string {
	return p.Info().BootID
}

func (p *Provider) Uptime() time.Duration {
	return time.Since(p.Info().Launched)
}

func (p *Provider) initialize() {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	p.info = Info{
		BootID:   uuid.NewString(),
		Launched: time.Now(),
		Hostname: host,
		PID:      os.Getpid(),
	}
}
