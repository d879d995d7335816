package all

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mairanteodoro/roman-photoz/internal/storage"
)

func TestAllBackendsRegistered(t *testing.T) {
	if diff := cmp.Diff([]string{"mssql", "postgres", "sqlite"}, storage.Kinds()); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}
}
