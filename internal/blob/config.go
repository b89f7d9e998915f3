package blob

// S3BlobConfig locates a table in a bucket. BucketName and Prefix normally
// come from the table URI; the rest from the tablesync config. Empty keys use
// the default AWS credential chain.
type S3BlobConfig struct {
	BucketName    string
	Prefix        string
	Region        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	UseAccelerate bool
}
