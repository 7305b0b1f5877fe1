package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation from the process environment:
//
//	QCTRACK_BLOB_DRIVER   fs|s3|memory (default fs)
//	QCTRACK_BLOB_FS_ROOT  directory root when driver=fs (default ./documents)
//	QCTRACK_BLOB_S3_*     see OpenS3FromEnv
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("QCTRACK_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("QCTRACK_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
