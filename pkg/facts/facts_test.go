package facts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/fwhelper/internal/connector/connectortest"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	_ "github.com/eugenetaranov/fwhelper/internal/parser/ios"
)

const osVersion = "Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M), Version 12.2(55)SE7, RELEASE SOFTWARE (fc1)"

func TestGather(t *testing.T) {
	sess := &connectortest.Session{Outputs: map[string]string{
		"show version": connectortest.ShowVersion("sw1", "12.2(55)SE7", "c2960-lanbasek9-mz.122-55.SE7.bin"),
	}}

	f, err := Gather(context.Background(), sess, "cisco_ios")
	require.NoError(t, err)

	assert.Equal(t, "sw1", f.Hostname)
	assert.Equal(t, "WS-C2960-24TT-L", f.Model)
	assert.Equal(t, "FOC1234X5YZ", f.Serial)
	assert.Equal(t, osVersion, f.OSVersion)
	assert.Equal(t, "Cisco", f.Vendor)
	assert.Equal(t, []string{"show version"}, sess.Executed())
}

func TestGatherErrors(t *testing.T) {
	t.Run("command fails", func(t *testing.T) {
		sess := &connectortest.Session{Errors: map[string]error{"show version": errors.New("eof")}}
		_, err := Gather(context.Background(), sess, "cisco_ios")
		assert.Error(t, err)
	})

	t.Run("unparseable output", func(t *testing.T) {
		sess := &connectortest.Session{Outputs: map[string]string{"show version": "% Invalid input"}}
		_, err := Gather(context.Background(), sess, "cisco_ios")
		require.Error(t, err)
		assert.Equal(t, fault.Parse, fault.KindOf(err))
	})

	t.Run("unknown dialect", func(t *testing.T) {
		sess := &connectortest.Session{Outputs: map[string]string{"show version": osVersion}}
		_, err := Gather(context.Background(), sess, "junos")
		require.Error(t, err)
		assert.Equal(t, fault.Parse, fault.KindOf(err))
	})
}

func TestImageName(t *testing.T) {
	name, err := ImageName(osVersion)
	require.NoError(t, err)
	assert.Equal(t, "C2960-LANBASEK9-M", name)

	_, err = ImageName("Cisco IOS XE Software, Version 16.09.03")
	assert.Equal(t, fault.Parse, fault.KindOf(err))
}

func TestImageVersion(t *testing.T) {
	tests := []struct {
		name      string
		osVersion string
		want      string
		wantErr   bool
	}{
		{"classic", osVersion, "12.2(55)SE7", false},
		{"version at end", "Cisco IOS XE Software, Version 16.09.03", "16.09.03", false},
		{"missing", "Cisco Nexus Operating System (NX-OS) Software", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageVersion(tt.osVersion)
			if tt.wantErr {
				assert.Equal(t, fault.Parse, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
