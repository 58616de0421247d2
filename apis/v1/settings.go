package v1

// Settings is the persisted preferences document.
type Settings struct {
	Archive  ArchiveSettings  `yaml:"archive" json:"archive"`
	Compress CompressSettings `yaml:"compress" json:"compress"`
	Extract  ExtractSettings  `yaml:"extract" json:"extract"`
	Filter   FilterSettings   `yaml:"filter" json:"filter"`

	// Publish lists extra destinations every committed archive is copied to.
	Publish []PublishSpec `yaml:"publish,omitempty" json:"publish,omitempty" validate:"dive"`

	// Explorer opens a folder (default: xdg-open, open or explorer by OS).
	Explorer string `yaml:"explorer,omitempty" json:"explorer,omitempty"`
	// Mailer is invoked with the archive path to compose a mail.
	Mailer string `yaml:"mailer,omitempty" json:"mailer,omitempty"`
}

// ArchiveSettings are the defaults of a new archive.
type ArchiveSettings struct {
	Format     string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=zip tar"`
	Method     string `yaml:"method,omitempty" json:"method,omitempty" validate:"omitempty,oneof=default copy store none deflate zstd gzip lz4 xz"`
	Level      string `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,oneof=none fast low normal high ultra"`
	Encryption string `yaml:"encryption,omitempty" json:"encryption,omitempty" validate:"omitempty,oneof=none default age"`

	// Threads is the compressor concurrency. Zero uses every CPU.
	Threads int `yaml:"threads,omitempty" json:"threads,omitempty" validate:"gte=0,lte=256"`

	// SaveLocation is one of source, others or runtime.
	SaveLocation  string `yaml:"save_location,omitempty" json:"save_location,omitempty" validate:"omitempty,oneof=source others runtime"`
	SaveDirectory string `yaml:"save_directory,omitempty" json:"save_directory,omitempty" validate:"required_if=SaveLocation others"`

	// Conflict decides what happens when the destination exists.
	Conflict string `yaml:"conflict,omitempty" json:"conflict,omitempty" validate:"omitempty,oneof=ask overwrite rename cancel"`
}

type CompressSettings struct {
	OpenMethod   string `yaml:"open_method,omitempty" json:"open_method,omitempty" validate:"omitempty,oneof=none open open_not_desktop"`
	DeleteOnMail bool   `yaml:"delete_on_mail,omitempty" json:"delete_on_mail,omitempty"`
}

type ExtractSettings struct {
	OpenMethod string `yaml:"open_method,omitempty" json:"open_method,omitempty" validate:"omitempty,oneof=none open open_not_desktop"`
	// RootDirectory is one of auto, create or none.
	RootDirectory string `yaml:"root_directory,omitempty" json:"root_directory,omitempty" validate:"omitempty,oneof=auto create none"`
	// RestoreMetadata applies stored modification times and permissions
	// (default: true).
	RestoreMetadata *bool `yaml:"restore_metadata,omitempty" json:"restore_metadata,omitempty"`
}

// FilterSettings configure which files are skipped.
type FilterSettings struct {
	// Enabled turns on the built-in clutter list (default: true).
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Patterns are globs on the base name, or on the whole path when they
	// contain a slash.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	// Expressions are CEL predicates over name, path, size and dir.
	Expressions []string `yaml:"expressions,omitempty" json:"expressions,omitempty"`
}

// PublishSpec is one publish destination (one of the fields should be set).
type PublishSpec struct {
	Folder *FolderSpec `yaml:"folder,omitempty" json:"folder,omitempty"`
	S3     *S3Spec     `yaml:"s3,omitempty" json:"s3,omitempty"`
	Stdout *StdoutSpec `yaml:"stdout,omitempty" json:"stdout,omitempty"`
}

// FolderSpec copies the archive into a directory.
type FolderSpec struct {
	Path string `yaml:"path" json:"path" validate:"required"`
}

// S3Spec uploads the archive to S3-compatible object storage.
type S3Spec struct {
	Bucket         string  `yaml:"bucket" json:"bucket" validate:"required"`
	Prefix         *string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region         *string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint       *string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"omitempty,url"`
	ForcePathStyle bool    `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	// Timestamp nests each upload under a UTC timestamp folder.
	Timestamp bool `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	// ByFormat nests each upload under a folder named after its format.
	ByFormat bool `yaml:"by_format,omitempty" json:"by_format,omitempty"`
	// Credentials default to the AWS SDK chain when unset.
	Credentials *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required"`
}

// StdoutSpec streams the archive to standard output (no options currently).
type StdoutSpec struct{}
