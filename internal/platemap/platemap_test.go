package platemap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assaykit/assaykit/internal/table"
)

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "map.txt")
	require.NoError(t, os.WriteFile(good, []byte(strings.Join(RequiredFields, "\t")+"\textra\n"), 0o644))
	assert.NoError(t, ValidateFile(good))

	bad := filepath.Join(dir, "bad.map")
	require.NoError(t, os.WriteFile(bad, []byte("pert_id\tpert_well\tpert_plate\n"), 0o644))
	err := ValidateFile(bad)
	var mc *table.MissingColumnsError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []string{"pert_dose", "pert_iname", "pert_type", "x_project_id", "pert_vehicle"}, mc.Missing)
}
