// Package accounts lists login accounts through the AccountsService D-Bus API
package accounts

import (
	"context"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

const (
	dbusServiceName = "org.freedesktop.Accounts"
	dbusPath        = dbus.ObjectPath("/org/freedesktop/Accounts")
	dbusInterface   = "org.freedesktop.Accounts"
	userInterface   = "org.freedesktop.Accounts.User"
	propsInterface  = "org.freedesktop.DBus.Properties"
)

// User is the part of an AccountsService user a greeter shows
type User struct {
	Name          string `yaml:"name"`
	RealName      string `yaml:"real_name,omitempty"`
	UID           uint64 `yaml:"uid"`
	HomeDir       string `yaml:"home"`
	IconFile      string `yaml:"icon,omitempty"`
	Language      string `yaml:"language,omitempty"`
	Session       string `yaml:"session,omitempty"`
	Locked        bool   `yaml:"locked,omitempty"`
	SystemAccount bool   `yaml:"-"`
}

// DisplayName is the real name, or the login name when unset
func (u User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Client talks to AccountsService on the system bus
type Client struct {
	conn *dbus.Conn
}

// Connect opens a private connection to the system bus
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the bus connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListUsers returns the cached human accounts, sorted by name
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var paths []dbus.ObjectPath
	obj := c.conn.Object(dbusServiceName, dbusPath)
	if err := obj.CallWithContext(ctx, dbusInterface+".ListCachedUsers", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]User, 0, len(paths))
	for _, path := range paths {
		var props map[string]dbus.Variant
		err := c.conn.Object(dbusServiceName, path).
			CallWithContext(ctx, propsInterface+".GetAll", 0, userInterface).
			Store(&props)
		if err != nil {
			return nil, fmt.Errorf("failed to read user %s: %w", path, err)
		}

		u := userFromProps(props)
		if u.SystemAccount || u.Name == "" {
			continue
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func userFromProps(props map[string]dbus.Variant) User {
	str := func(key string) string {
		if v, ok := props[key]; ok {
			if s, ok := v.Value().(string); ok {
				return s
			}
		}
		return ""
	}
	flag := func(key string) bool {
		if v, ok := props[key]; ok {
			if b, ok := v.Value().(bool); ok {
				return b
			}
		}
		return false
	}

	u := User{
		Name:          str("UserName"),
		RealName:      str("RealName"),
		HomeDir:       str("HomeDirectory"),
		IconFile:      str("IconFile"),
		Language:      str("Language"),
		Session:       str("Session"),
		Locked:        flag("Locked"),
		SystemAccount: flag("SystemAccount"),
	}
	if v, ok := props["Uid"]; ok {
		if uid, ok := v.Value().(uint64); ok {
			u.UID = uid
		}
	}
	// Older AccountsService releases only set XSession
	if u.Session == "" {
		u.Session = str("XSession")
	}
	return u
}
