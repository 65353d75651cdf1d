package vfs_test

import (
	"testing"

	"github.com/marmos91/framefs/pkg/vfs"
	vfstesting "github.com/marmos91/framefs/pkg/vfs/testing"
)

func TestMemoryFileOpsConformance(t *testing.T) {
	suite := &vfstesting.FileOpsTestSuite{
		NewOps: func(t *testing.T) vfs.FileOps {
			return &vfs.MemoryFileOps{Budget: vfs.NewBudget(1 << 20)}
		},
	}
	suite.Run(t)
}
