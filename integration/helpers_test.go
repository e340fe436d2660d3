//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/p4k"
	"github.com/meigma/p4k/internal/testutil"
)

const webRoot = "/usr/share/nginx/html/"

// --- Server Container Setup ---

var (
	serverOnce sync.Once
	serverURL  string
	serverErr  error
)

// getServer returns the base URL of the shared fixture server, starting the
// container if needed. The container is shared across all tests.
func getServer(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	serverOnce.Do(func() {
		var dir string
		dir, serverErr = os.MkdirTemp("", "p4k-fixtures-")
		if serverErr != nil {
			return
		}
		if serverErr = writeFixtures(tb, dir); serverErr != nil {
			return
		}
		serverURL, serverErr = startServerContainer(context.Background(), dir)
	})

	if serverErr != nil {
		tb.Fatalf("start fixture server: %v", serverErr)
	}
	return serverURL
}

// startServerContainer starts nginx with every file in dir under its web
// root and returns the base URL.
func startServerContainer(ctx context.Context, dir string) (string, error) {
	names, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	files := make([]testcontainers.ContainerFile, 0, len(names))
	for _, n := range names {
		files = append(files, testcontainers.ContainerFile{
			HostFilePath:      filepath.Join(dir, n.Name()),
			ContainerFilePath: webRoot + n.Name(),
			FileMode:          0o644,
		})
	}

	req := testcontainers.ContainerRequest{
		Image:        "nginx:1.27-alpine",
		ExposedPorts: []string{"80/tcp"},
		Files:        files,
		WaitingFor:   wait.ForHTTP("/" + baseName).WithPort("80/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start server container: %w", err)
	}

	// Container cleanup is handled by the testcontainers reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve server host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve server port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s/", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Fixtures ---

const (
	baseName    = "base.p4k"
	patchedName = "patched.p4k"
)

var (
	largeText  = makeCompressibleContent(512 * 1024)
	randomBlob = makeRandomContent(64 * 1024)
	innerData  = []byte("inside the socpak")
)

// baseFiles maps tree paths to the content of every plain file in the base
// fixture.
var baseFiles = map[string][]byte{
	`Data\Game.dcb`:                        largeText,
	`Data\Libs\Config\defaultProfile.xml`:  []byte("<profile/>"),
	`Data\Localization\english\global.ini`: []byte("key=value\n"),
	`Data\Objects\blob.bin`:                randomBlob,
}

// fixture returns the members of the named archive.
func fixture(tb testing.TB, name string) []testutil.Member {
	tb.Helper()
	inner := testutil.BuildArchive(tb, []testutil.Member{
		{Name: `Objects\inner.txt`, Data: innerData, Method: p4k.CompressionZstd},
	})
	members := []testutil.Member{
		{Name: `Data\Game.dcb`, Data: largeText, Method: p4k.CompressionZstd, Encrypted: true, Zip64: true},
		{Name: `Data\Libs\Config\defaultProfile.xml`, Data: []byte("<profile/>"), Method: p4k.CompressionDeflate},
		{Name: `Data\Localization\english\global.ini`, Data: []byte("key=value\n"), Method: p4k.CompressionZstd},
		{Name: `Data\Objects\blob.bin`, Data: randomBlob},
		{Name: `Data\Textures\hull.dds`, Data: []byte("header|")},
		{Name: `Data\Textures\hull.dds.1`, Data: []byte("mip-one|"), Method: p4k.CompressionDeflate},
		{Name: `Data\Textures\hull.dds.2`, Data: []byte("mip-two"), Method: p4k.CompressionZstd},
		{Name: `Data\ObjectContainers\station.socpak`, Data: inner},
	}
	if name == patchedName {
		members[2].Data = []byte("key=patched\n")
		members = append(members[:3], members[4:]...)
		members = append(members, testutil.Member{Name: `Data\Scripts\new.lua`, Data: []byte("return 1")})
	}
	return members
}

// writeFixtures writes every fixture archive into dir.
func writeFixtures(tb testing.TB, dir string) error {
	tb.Helper()
	for _, name := range []string{baseName, patchedName} {
		data := testutil.BuildArchive(tb, fixture(tb, name))
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeLocal writes the named fixture into a test temp dir.
func writeLocal(tb testing.TB, name string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	require.NoError(tb, os.WriteFile(path, testutil.BuildArchive(tb, fixture(tb, name)), 0o600))
	return path
}

// --- Test Data Helpers ---

// makeCompressibleContent creates content that benefits from compression.
func makeCompressibleContent(size int) []byte {
	pattern := []byte("This is a repeating pattern for compression testing. ")
	return bytes.Repeat(pattern, size/len(pattern)+1)[:size]
}

// makeRandomContent creates random binary content.
func makeRandomContent(size int) []byte {
	data := make([]byte, size)
	_, _ = rand.Read(data)
	return data
}

// --- Assertion Helpers ---

// assertFilesMatch verifies that a tree contains the expected files.
func assertFilesMatch(tb testing.TB, tree *p4k.Tree, expected map[string][]byte) {
	tb.Helper()

	for path, want := range expected {
		got, err := tree.ReadAll(path)
		require.NoError(tb, err, "ReadAll(%q)", path)
		require.Equal(tb, want, got, "content mismatch for %q", path)
	}
}

// assertDirContents verifies that dir holds the expected files.
func assertDirContents(tb testing.TB, dir string, expected map[string][]byte) {
	tb.Helper()

	for path, want := range expected {
		host := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(path, `\`, "/")))
		got, err := os.ReadFile(host)
		require.NoError(tb, err, "ReadFile(%q)", host)
		require.Equal(tb, want, got, "content mismatch for %q", path)
	}
}
