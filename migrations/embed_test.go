package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, n := range names {
		if base, ok := strings.CutSuffix(n, ".up.sql"); ok {
			assert.True(t, set[base+".down.sql"], "missing down migration for %s", n)
		}
	}
}

func TestInitDeclaresConstraintsByName(t *testing.T) {
	data, err := FS.ReadFile("0001_init.up.sql")
	require.NoError(t, err)
	sql := string(data)

	for _, name := range []string{
		"time_slots_range_chk",
		"time_slots_doctor_date_times_key",
		"appointments_slot_id_fkey",
		"appointments_no_self_booking",
		"appointments_doctor_patient_slot_key",
		"appointments_live_slot_key",
	} {
		assert.Contains(t, sql, name)
	}
}
