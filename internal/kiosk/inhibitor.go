package kiosk

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	inhibitApplication = "screend"
	inhibitReason      = "kiosk mode"
)

// Inhibitor keeps the desktop screensaver and display blanking off while kiosk
// mode is active. It connects lazily so a missing session bus only disables
// inhibition.
type Inhibitor struct {
	logger  *zap.Logger
	connect func() (DBusClient, error)

	mu     sync.Mutex
	conn   DBusClient
	cookie uint32
	held   bool
}

// NewInhibitor creates an inhibitor that dials the session bus on first use
func NewInhibitor(logger *zap.Logger) *Inhibitor {
	return &Inhibitor{logger: logger, connect: NewStdDBusClient}
}

// Inhibit takes the screensaver inhibition if it is not already held
func (i *Inhibitor) Inhibit() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.held {
		return nil
	}

	if i.conn == nil {
		conn, err := i.connect()
		if err != nil {
			return fmt.Errorf("session bus connection failed: %w", err)
		}
		i.conn = conn
	}

	cookie, err := i.conn.Inhibit(inhibitApplication, inhibitReason)
	if err != nil {
		return fmt.Errorf("screensaver inhibit failed: %w", err)
	}
	i.cookie = cookie
	i.held = true
	i.logger.Debug("Screensaver inhibited", zap.Uint32("cookie", cookie))
	return nil
}

// Release drops the inhibition if held
func (i *Inhibitor) Release() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.held {
		return nil
	}
	i.held = false
	if err := i.conn.UnInhibit(i.cookie); err != nil {
		return fmt.Errorf("screensaver uninhibit failed: %w", err)
	}
	i.logger.Debug("Screensaver inhibition released", zap.Uint32("cookie", i.cookie))
	return nil
}

// Close releases the inhibition and closes the bus connection
func (i *Inhibitor) Close() error {
	err := i.Release()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil {
		err = multierr.Append(err, i.conn.Close())
		i.conn = nil
	}
	return err
}
