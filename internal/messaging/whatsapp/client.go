// Package whatsapp implements messaging.Client on top of whatsmeow. Devices
// must already be paired in the device store; this package never pairs.
package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Client is a single whatsmeow connection bound to one stored device.
type Client struct {
	wa             *whatsmeow.Client
	connectTimeout time.Duration
	log            zerolog.Logger

	mu        sync.Mutex
	destroyed bool
}

func newClient(device *store.Device, connectTimeout time.Duration, logger zerolog.Logger) *Client {
	c := &Client{
		wa:             whatsmeow.NewClient(device, waLog.Zerolog(logger.With().Str("module", "whatsmeow").Logger())),
		connectTimeout: connectTimeout,
		log:            logger,
	}
	c.wa.AddEventHandler(c.handleEvent)
	return c
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.log.Info().Msg("whatsapp connected")
	case *events.Disconnected:
		c.log.Warn().Msg("whatsapp disconnected")
	case *events.LoggedOut:
		c.log.Error().Str("reason", v.Reason.String()).Msg("whatsapp device logged out")
	case *events.QR:
		c.log.Warn().Int("codes", len(v.Codes)).Msg("device is not paired; ignoring pairing QR codes")
	}
}

func (c *Client) Initialize(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		return errors.New("device is not paired")
	}
	if err := c.wa.Connect(); err != nil {
		return errors.Wrap(err, "failed to connect")
	}

	timeout := c.connectTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !c.wa.WaitForConnection(timeout) {
		c.wa.Disconnect()
		return errors.Errorf("not connected after %s", timeout)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, target, body string) error {
	if !c.wa.IsConnected() {
		return errors.New("not connected")
	}
	jid, err := TargetJID(target)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(body)}
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return errors.Wrapf(err, "failed to send to %s", jid)
	}
	return nil
}

func (c *Client) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.wa.Disconnect()
	return nil
}
