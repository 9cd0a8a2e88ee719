package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/wa-rotator/backend/internal/messaging"
	"github.com/wa-rotator/backend/internal/session"
)

// Options configures a Factory.
type Options struct {
	// DeviceStore is the sqlite DSN of the whatsmeow device store.
	DeviceStore string
	// CredsDir holds uploaded credential files named <sessionId>.json.
	CredsDir string
	// CredsPath is the credentials file used when a session has none.
	CredsPath      string
	ConnectTimeout time.Duration
}

// Factory resolves sessions to paired devices in a shared device store.
type Factory struct {
	container *sqlstore.Container
	opts      Options
	log       zerolog.Logger
}

var _ messaging.Factory = (*Factory)(nil)

// NewFactory opens the device store.
func NewFactory(ctx context.Context, opts Options, logger zerolog.Logger) (*Factory, error) {
	if dir := filepath.Dir(dsnPath(opts.DeviceStore)); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create device store directory")
		}
	}
	container, err := sqlstore.New(ctx, "sqlite3", opts.DeviceStore,
		waLog.Zerolog(logger.With().Str("module", "whatsmeow-store").Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open whatsapp device store")
	}
	return &Factory{container: container, opts: opts, log: logger}, nil
}

// PairedDevices returns the JIDs of every paired device in the store.
func (f *Factory) PairedDevices(ctx context.Context) ([]types.JID, error) {
	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	jids := make([]types.JID, 0, len(devices))
	for _, d := range devices {
		if d.ID != nil {
			jids = append(jids, *d.ID)
		}
	}
	return jids, nil
}

func (f *Factory) NewClient(ctx context.Context, s *session.Session) (messaging.Client, error) {
	var (
		device *store.Device
		err    error
	)
	switch s.ConnectionType {
	case session.ConnectCredentials:
		device, err = f.deviceFromCredentials(ctx, s.SessionID)
	case session.ConnectPhoneID:
		device, err = f.deviceForPhone(ctx, s.PhoneID)
	default:
		err = errors.Errorf("unsupported connection type %s", s.ConnectionType)
	}
	if err != nil {
		return nil, err
	}

	logger := f.log.With().Str("session", s.SessionID).Str("device", device.ID.String()).Logger()
	return newClient(device, f.opts.ConnectTimeout, logger), nil
}

// credentialsPath prefers the file uploaded for this session.
func (f *Factory) credentialsPath(sessionID string) string {
	if f.opts.CredsDir != "" && session.ValidateID(sessionID) == nil {
		p := filepath.Join(f.opts.CredsDir, sessionID+".json")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return f.opts.CredsPath
}

func (f *Factory) deviceFromCredentials(ctx context.Context, sessionID string) (*store.Device, error) {
	path := f.credentialsPath(sessionID)
	if path == "" {
		return nil, errors.New("no credentials file configured")
	}
	creds, err := ReadCredentials(path)
	if err != nil {
		return nil, err
	}
	jid, err := creds.DeviceJID()
	if err != nil {
		return nil, err
	}

	if jid.Device != 0 {
		device, err := f.container.GetDevice(ctx, jid)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load device %s", jid)
		}
		if device != nil {
			return device, nil
		}
	}
	return f.deviceForPhone(ctx, jid.User)
}

func (f *Factory) deviceForPhone(ctx context.Context, phone string) (*store.Device, error) {
	if phone == "" {
		return nil, errors.New("phoneId is required for phoneId connections")
	}
	user := phone
	if jid, err := TargetJID(phone); err == nil {
		user = jid.User
	}

	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	for _, d := range devices {
		if d.ID != nil && d.ID.User == user {
			return d, nil
		}
	}
	return nil, errors.Errorf("no paired device for %s", user)
}

// dsnPath strips the "file:" scheme and query from a sqlite DSN.
func dsnPath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func (f *Factory) Close() error {
	return f.container.Close()
}
