//go:build windows

package native

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/windows/registry"
)

const (
	vciDLLName    = "vciapi.dll"
	vciGUIDHeader = "vciguid.h"
)

func archDir() string {
	if runtime.GOARCH == "386" {
		return "x32"
	}
	return "x64"
}

// installDirs returns the VCI install roots, newest first.
func installDirs() []string {
	var dirs []string
	if dir := findRegistryInstallDir(); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, root := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)")} {
		if root == "" {
			continue
		}
		dirs = append(dirs,
			filepath.Join(root, "HMS", "Ixxat VCI"),
			filepath.Join(root, "HMS", "VCI4"),
			filepath.Join(root, "IXXAT", "VCI"),
		)
	}
	return dirs
}

func vciDLLCandidates() []string {
	var candidates []string
	seen := make(map[string]struct{})

	add := func(path string) {
		if path == "" {
			return
		}
		if _, exists := seen[path]; exists {
			return
		}
		seen[path] = struct{}{}
		candidates = append(candidates, path)
	}

	if envPath := os.Getenv("VCI_DLL_PATH"); envPath != "" {
		if info, err := os.Stat(envPath); err == nil && info.IsDir() {
			add(filepath.Join(envPath, vciDLLName))
		} else {
			add(envPath)
		}
	}
	if envDir := os.Getenv("VCI_DLL_DIR"); envDir != "" {
		add(filepath.Join(envDir, vciDLLName))
	}

	add(filepath.Join(".", "DLLs", archDir(), vciDLLName))

	for _, dir := range installDirs() {
		add(filepath.Join(dir, "sdk", "vci", "bin", archDir(), "release", vciDLLName))
		add(filepath.Join(dir, "sdk", "vci", "bin", archDir(), vciDLLName))
		add(filepath.Join(dir, "bin", archDir(), vciDLLName))
	}

	// system32 copy installed by the driver package
	add(vciDLLName)
	return candidates
}

func loadDLL() (*syscall.LazyDLL, string, error) {
	var errs []string
	for _, path := range vciDLLCandidates() {
		dll := syscall.NewLazyDLL(path)
		if err := dll.Load(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		log.Printf("VCI library loaded from %s", path)
		return dll, path, nil
	}
	return nil, "", fmt.Errorf("failed to load %s (%s)", vciDLLName, strings.Join(errs, "; "))
}

func guidHeaderCandidates(dllPath string) []string {
	var candidates []string
	if env := os.Getenv("VCI_SDK_INC"); env != "" {
		candidates = append(candidates, filepath.Join(env, vciGUIDHeader))
	}
	if dir := filepath.Dir(dllPath); dir != "." {
		// <sdk>\vci\bin\<arch>[\release]\vciapi.dll -> <sdk>\vci\inc
		for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
			candidates = append(candidates, filepath.Join(d, "inc", vciGUIDHeader))
		}
	}
	for _, dir := range installDirs() {
		candidates = append(candidates, filepath.Join(dir, "sdk", "vci", "inc", vciGUIDHeader))
	}
	return candidates
}

func loadGUIDs(dllPath string) (map[string]GUID, error) {
	for _, path := range guidHeaderCandidates(dllPath) {
		if !fileExists(path) {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		guids, err := ParseGUIDHeader(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if missing := MissingGUIDs(guids); len(missing) > 0 {
			return nil, fmt.Errorf("%s: missing %s", path, strings.Join(missing, ", "))
		}
		return guids, nil
	}
	return nil, fmt.Errorf("%s not found; install the VCI SDK or set VCI_SDK_INC", vciGUIDHeader)
}

func findRegistryInstallDir() string {
	const uninstall = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`

	views := []uint32{
		registry.READ | registry.WOW64_64KEY,
		registry.READ | registry.WOW64_32KEY,
	}
	for _, access := range views {
		if dir := findRegistryPathInView(uninstall, access); dir != "" {
			return dir
		}
	}
	return ""
}

func findRegistryPathInView(uninstall string, access uint32) string {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, uninstall, access)
	if err != nil {
		return ""
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return ""
	}

	for _, name := range names {
		sk, err := registry.OpenKey(registry.LOCAL_MACHINE, uninstall+`\`+name, access)
		if err != nil {
			continue
		}
		publisher, _, _ := sk.GetStringValue("Publisher")
		displayName, _, _ := sk.GetStringValue("DisplayName")
		install, _, _ := sk.GetStringValue("InstallLocation")
		sk.Close()

		pub := strings.ToLower(publisher)
		disp := strings.ToLower(displayName)
		if !strings.Contains(disp, "vci") {
			continue
		}
		if !strings.Contains(pub, "ixxat") && !strings.Contains(pub, "hms") {
			continue
		}
		if install = strings.TrimSpace(install); install != "" {
			return strings.TrimRight(install, `\`)
		}
	}
	return ""
}
