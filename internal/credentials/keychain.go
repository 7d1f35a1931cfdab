package credentials

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	secretsDest       = "org.freedesktop.secrets"
	secretsPath       = dbus.ObjectPath("/org/freedesktop/secrets")
	defaultCollection = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")

	serviceIface    = "org.freedesktop.Secret.Service"
	collectionIface = "org.freedesktop.Secret.Collection"
	itemIface       = "org.freedesktop.Secret.Item"

	serviceAttr = "possync"
)

// dbusSecret mirrors the Secret Service (oayays) secret struct.
type dbusSecret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// KeychainStore persists secrets in the freedesktop Secret Service (the
// desktop keyring) over the session D-Bus. Load never fails: any error is
// logged and reported as an absent secret.
type KeychainStore struct {
	logger *zerolog.Logger
}

func NewKeychainStore(logger *zerolog.Logger) *KeychainStore {
	return &KeychainStore{logger: logger}
}

func (s *KeychainStore) attributes(account string) map[string]string {
	return map[string]string{
		"service": serviceAttr,
		"account": account,
	}
}

func (s *KeychainStore) openSession(conn *dbus.Conn) (dbus.ObjectPath, error) {
	var (
		output  dbus.Variant
		session dbus.ObjectPath
	)
	svc := conn.Object(secretsDest, secretsPath)
	call := svc.Call(serviceIface+".OpenSession", 0, "plain", dbus.MakeVariant(""))
	if call.Err != nil {
		return "", fmt.Errorf("open secret session: %w", call.Err)
	}
	if err := call.Store(&output, &session); err != nil {
		return "", fmt.Errorf("decode secret session: %w", err)
	}
	return session, nil
}

func (s *KeychainStore) search(conn *dbus.Conn, account string) ([]dbus.ObjectPath, error) {
	var unlocked, locked []dbus.ObjectPath
	svc := conn.Object(secretsDest, secretsPath)
	call := svc.Call(serviceIface+".SearchItems", 0, s.attributes(account))
	if call.Err != nil {
		return nil, fmt.Errorf("search secrets: %w", call.Err)
	}
	if err := call.Store(&unlocked, &locked); err != nil {
		return nil, fmt.Errorf("decode secret search: %w", err)
	}

	if len(locked) > 0 {
		var (
			nowUnlocked []dbus.ObjectPath
			prompt      dbus.ObjectPath
		)
		call = svc.Call(serviceIface+".Unlock", 0, locked)
		if call.Err == nil && call.Store(&nowUnlocked, &prompt) == nil {
			unlocked = append(unlocked, nowUnlocked...)
		}
	}

	return unlocked, nil
}

// Save stores (or replaces) the secret in the default keyring collection.
func (s *KeychainStore) Save(account, secret string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}

	session, err := s.openSession(conn)
	if err != nil {
		return err
	}

	props := map[string]dbus.Variant{
		itemIface + ".Label":      dbus.MakeVariant(serviceAttr + " " + account),
		itemIface + ".Attributes": dbus.MakeVariant(s.attributes(account)),
	}
	value := dbusSecret{
		Session:     session,
		Parameters:  []byte{},
		Value:       []byte(secret),
		ContentType: "text/plain",
	}

	var item, prompt dbus.ObjectPath
	coll := conn.Object(secretsDest, defaultCollection)
	call := coll.Call(collectionIface+".CreateItem", 0, props, value, true)
	if call.Err != nil {
		return fmt.Errorf("store secret: %w", call.Err)
	}
	if err := call.Store(&item, &prompt); err != nil {
		return fmt.Errorf("decode stored secret path: %w", err)
	}
	return nil
}

// Load retrieves the secret, "" when missing or on any keyring failure.
func (s *KeychainStore) Load(account string) string {
	conn, err := dbus.SessionBus()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Secret service unavailable")
		return ""
	}

	items, err := s.search(conn, account)
	if err != nil || len(items) == 0 {
		if err != nil {
			s.logger.Debug().Err(err).Msg("Secret lookup failed")
		}
		return ""
	}

	session, err := s.openSession(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Secret session failed")
		return ""
	}

	var secret dbusSecret
	item := conn.Object(secretsDest, items[0])
	call := item.Call(itemIface+".GetSecret", 0, session)
	if call.Err != nil || call.Store(&secret) != nil {
		s.logger.Debug().Err(call.Err).Msg("Secret read failed")
		return ""
	}

	return string(secret.Value)
}

// Clear removes all matching secrets; missing entries are not an error.
func (s *KeychainStore) Clear(account string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}

	items, err := s.search(conn, account)
	if err != nil {
		return err
	}

	for _, path := range items {
		var prompt dbus.ObjectPath
		item := conn.Object(secretsDest, path)
		call := item.Call(itemIface+".Delete", 0)
		if call.Err != nil {
			return fmt.Errorf("delete secret: %w", call.Err)
		}
		_ = call.Store(&prompt)
	}
	return nil
}
