package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mairanteodoro/roman-photoz/internal/config"
	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

type fakeRunner struct {
	mu    sync.Mutex
	cmds  []Command
	paras map[string]string
	fail  string
}

func (f *fakeRunner) Run(ctx context.Context, c Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, c)
	if f.paras == nil {
		f.paras = map[string]string{}
	}
	para := c.Args[len(c.Args)-1]
	b, err := os.ReadFile(para)
	if err != nil {
		return err
	}
	f.paras[filepath.Base(para)] = string(b)
	if f.fail != "" && filepath.Base(c.Name) == f.fail {
		return errors.New("exit status 1")
	}
	return nil
}

func testEnv(t *testing.T) config.Env {
	t.Helper()
	root := t.TempDir()
	return config.Env{LephareDir: filepath.Join(root, "lephare"), LephareWork: filepath.Join(root, "work")}
}

func TestPrepare_RunsProgramsInOrder(t *testing.T) {
	t.Parallel()

	env := testEnv(t)
	fr := &fakeRunner{}
	e := Exec{Env: env, Runner: fr, BinDir: "/opt/lephare/bin"}

	cfg := config.Keywords{"GAL_LIB_OUT": "ROMAN_GAL_MAG", "LIB_ASCII": "NO"}
	gal := config.Keywords{"GAL_LIB_OUT": config.SimulatedMagsStem, "LIB_ASCII": "YES"}
	if err := e.Prepare(context.Background(), cfg, nil, gal, nil); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var got []string
	for _, c := range fr.cmds {
		got = append(got, strings.TrimPrefix(c.String(), "/opt/lephare/bin/"))
	}
	work := env.LephareWork
	want := []string{
		"filter -c " + filepath.Join(work, "roman_photoz.para"),
		"sedtolib -t S -c " + filepath.Join(work, "roman_photoz_S.para"),
		"mag_gal -t S -c " + filepath.Join(work, "roman_photoz_S.para"),
		"sedtolib -t Q -c " + filepath.Join(work, "roman_photoz_Q.para"),
		"mag_gal -t Q -c " + filepath.Join(work, "roman_photoz_Q.para"),
		"sedtolib -t G -c " + filepath.Join(work, "roman_photoz_G.para"),
		"mag_gal -t G -c " + filepath.Join(work, "roman_photoz_G.para"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("commands (-want +got):\n%s", diff)
	}

	for _, c := range fr.cmds {
		if c.Dir != work {
			t.Fatalf("%s ran in %q", c, c.Dir)
		}
		if diff := cmp.Diff([]string{"LEPHAREDIR=" + env.LephareDir, "LEPHAREWORK=" + work}, c.Env); diff != "" {
			t.Fatalf("env (-want +got):\n%s", diff)
		}
	}

	if got := fr.paras["roman_photoz_G.para"]; got != "GAL_LIB_OUT ROMAN_SIMULATED_MAGS\nLIB_ASCII YES\n" {
		t.Fatalf("galaxy para:\n%s", got)
	}
	if got := fr.paras["roman_photoz_S.para"]; got != "GAL_LIB_OUT ROMAN_GAL_MAG\nLIB_ASCII NO\n" {
		t.Fatalf("star para:\n%s", got)
	}
	if cfg["LIB_ASCII"] != "NO" {
		t.Fatalf("Prepare mutated the base keywords")
	}
}

func TestPrepare_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: "sedtolib"}
	err := Exec{Env: testEnv(t), Runner: fr}.Prepare(context.Background(), config.Keywords{"A": "1"}, nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "sedtolib -t S") {
		t.Fatalf("err=%v", err)
	}
	if len(fr.cmds) != 2 {
		t.Fatalf("ran %d commands after failure, want 2", len(fr.cmds))
	}
}

func TestPrepare_RequiresEnvironment(t *testing.T) {
	t.Parallel()

	err := Exec{Runner: &fakeRunner{}}.Prepare(context.Background(), config.Keywords{}, nil, nil, nil)
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err=%v, want ErrConfiguration", err)
	}
}

func TestLibMagResolver(t *testing.T) {
	t.Parallel()

	got := LibMagResolver("/data/work")(config.SimulatedMagsStem)
	if want := filepath.Join("/data/work", "lib_mag", "ROMAN_SIMULATED_MAGS.dat"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCommandRunner(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	var out bytes.Buffer
	r := CommandRunner{Stdout: &out, Stderr: &out}
	err = r.Run(context.Background(), Command{
		Name: sh,
		Args: []string{"-c", "printf %s \"$LEPHAREWORK\""},
		Env:  []string{"LEPHAREWORK=/tmp/work"},
		Dir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "/tmp/work" {
		t.Fatalf("stdout=%q", out.String())
	}

	if err := r.Run(context.Background(), Command{Name: sh, Args: []string{"-c", "exit 3"}}); err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
}
