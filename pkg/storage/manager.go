package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shashiranjanraj/upbridge/config"
	"github.com/shashiranjanraj/upbridge/pkg/logger"
)

// ─── Manager ──────────────────────────────────────────────────────────────────

var (
	managerMu sync.RWMutex
	disks     = map[string]Disk{}
)

// Connect boots the disks described by config. The local disk is always
// available; the S3 disk only when S3_BUCKET is set.
func Connect(ctx context.Context) error {
	local, err := NewLocalDisk(config.StorageLocalRoot(), config.StorageURL())
	if err != nil {
		return err
	}
	RegisterDisk("local", local)

	if config.StorageS3Bucket() != "" {
		d, err := NewS3Disk(ctx, S3Config{
			Bucket:   config.StorageS3Bucket(),
			Region:   config.StorageS3Region(),
			Key:      config.StorageS3Key(),
			Secret:   config.StorageS3Secret(),
			Endpoint: config.StorageS3Endpoint(),
			BaseURL:  config.StorageS3URL(),
		})
		if err != nil {
			logger.Warn("storage: s3 disk disabled", "error", err)
		} else {
			RegisterDisk("s3", d)
		}
	}
	return nil
}

// Lookup returns the named disk.
func Lookup(name string) (Disk, error) {
	managerMu.RLock()
	d, ok := disks[name]
	managerMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: disk %q is not configured", name)
	}
	return d, nil
}

// Use returns the named disk and panics when it is missing. Meant for boot
// code where a missing disk is a configuration error.
func Use(name string) Disk {
	d, err := Lookup(name)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// RegisterDisk plugs in a Disk under name, replacing any previous one.
func RegisterDisk(name string, d Disk) {
	managerMu.Lock()
	disks[name] = d
	managerMu.Unlock()
}

// Names lists the registered disks.
func Names() []string {
	managerMu.RLock()
	defer managerMu.RUnlock()
	out := make([]string, 0, len(disks))
	for name := range disks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
