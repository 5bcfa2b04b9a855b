package app

import "github.com/charlesng35/crmhub/internal/storage"

// BackendConfig converts StorageConfig into the storage package representation.
func (c StorageConfig) BackendConfig() storage.Config {
	return storage.Config{
		Driver:        c.Driver,
		LocalPath:     c.LocalPath,
		PublicBaseURL: c.PublicBaseURL,
		Endpoint:      c.Minio.Endpoint,
		AccessKey:     c.Minio.AccessKey,
		SecretKey:     c.Minio.SecretKey,
		Bucket:        c.Minio.Bucket,
		Region:        c.Minio.Region,
		UseTLS:        c.Minio.UseTLS,
	}
}
