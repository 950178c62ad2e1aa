package accounts

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestUserFromProps(t *testing.T) {
	props := map[string]dbus.Variant{
		"UserName":      dbus.MakeVariant("alice"),
		"RealName":      dbus.MakeVariant("Alice Liddell"),
		"Uid":           dbus.MakeVariant(uint64(1000)),
		"HomeDirectory": dbus.MakeVariant("/home/alice"),
		"XSession":      dbus.MakeVariant("xfce"),
		"Locked":        dbus.MakeVariant(false),
		"SystemAccount": dbus.MakeVariant(false),
		"Language":      dbus.MakeVariant(""),
	}

	u := userFromProps(props)
	assert.Equal(t, User{
		Name:     "alice",
		RealName: "Alice Liddell",
		UID:      1000,
		HomeDir:  "/home/alice",
		Session:  "xfce",
	}, u)
	assert.Equal(t, "Alice Liddell", u.DisplayName())
}

func TestUserFromPropsWrongTypes(t *testing.T) {
	u := userFromProps(map[string]dbus.Variant{
		"UserName":      dbus.MakeVariant("bob"),
		"Uid":           dbus.MakeVariant("1001"),
		"SystemAccount": dbus.MakeVariant("yes"),
	})

	assert.Equal(t, "bob", u.Name)
	assert.Zero(t, u.UID)
	assert.False(t, u.SystemAccount)
	assert.Equal(t, "bob", u.DisplayName())
}
