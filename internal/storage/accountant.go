package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// DefaultQuotaBytes is the soft ceiling used when none is configured.
const DefaultQuotaBytes int64 = 2 << 30

// ManifestTotals is the part of the offline store the accountant needs.
type ManifestTotals interface {
	Status(ctx context.Context) (offline.Manifest, error)
	SetTotalBytes(ctx context.Context, total int64) error
}

// Usage is a snapshot of offline storage use.
type Usage struct {
	UsedBytes     int64   `json:"used_bytes"`
	ManifestBytes int64   `json:"manifest_bytes"`
	QuotaBytes    int64   `json:"quota_bytes"`
	PercentUsed   float64 `json:"percent_used"`
}

// Accountant measures space used under the offline root.
type Accountant struct {
	fs       afero.Fs
	manifest ManifestTotals
	quota    int64
}

// New returns an Accountant. A non-positive quota uses DefaultQuotaBytes.
func New(fs afero.Fs, manifest ManifestTotals, quota int64) *Accountant {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	return &Accountant{fs: fs, manifest: manifest, quota: quota}
}

// UsedBytes walks the offline root and sums regular file sizes.
func (a *Accountant) UsedBytes(ctx context.Context) (int64, error) {
	var total int64
	err := afero.Walk(a.fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk offline root: %w", err)
	}
	return total, nil
}

// ManifestBytes returns the manifest's running total.
func (a *Accountant) ManifestBytes(ctx context.Context) (int64, error) {
	m, err := a.manifest.Status(ctx)
	if err != nil {
		return 0, err
	}
	return m.TotalBytes, nil
}

// Reconcile rewrites the manifest total from the disk walk and returns the
// drift (disk minus manifest) it corrected.
func (a *Accountant) Reconcile(ctx context.Context) (int64, error) {
	used, err := a.UsedBytes(ctx)
	if err != nil {
		return 0, err
	}
	recorded, err := a.ManifestBytes(ctx)
	if err != nil {
		return 0, err
	}
	drift := used - recorded
	if drift != 0 {
		if err := a.manifest.SetTotalBytes(ctx, used); err != nil {
			return 0, err
		}
	}
	return drift, nil
}

// Recompute reconciles after a download or deletion, logging any drift.
func (a *Accountant) Recompute(ctx context.Context) error {
	drift, err := a.Reconcile(ctx)
	if err != nil {
		utils.Debug("storage: recompute failed: %v", err)
		return err
	}
	if drift != 0 {
		utils.Debug("storage: corrected manifest drift of %d bytes", drift)
	}
	return nil
}

// QuotaBytes returns the configured soft ceiling.
func (a *Accountant) QuotaBytes() int64 {
	return a.quota
}

// PercentUsed is UsedBytes/QuotaBytes*100 clamped to [0,100].
func (a *Accountant) PercentUsed(ctx context.Context) (float64, error) {
	used, err := a.UsedBytes(ctx)
	if err != nil {
		return 0, err
	}
	return Percent(used, a.quota), nil
}

// Usage gathers every figure for display.
func (a *Accountant) Usage(ctx context.Context) (Usage, error) {
	used, err := a.UsedBytes(ctx)
	if err != nil {
		return Usage{}, err
	}
	recorded, err := a.ManifestBytes(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		UsedBytes:     used,
		ManifestBytes: recorded,
		QuotaBytes:    a.quota,
		PercentUsed:   Percent(used, a.quota),
	}, nil
}

// Percent returns used/quota*100 clamped to [0,100].
func Percent(used, quota int64) float64 {
	if quota <= 0 || used <= 0 {
		return 0
	}
	p := float64(used) / float64(quota) * 100
	if p > 100 {
		return 100
	}
	return p
}
