package config

const (
	// MaterializeCopy copies referenced files into res/.
	MaterializeCopy = "copy"
	// MaterializeLink symlinks referenced files into res/.
	MaterializeLink = "link"
)

const (
	defaultSourceDir     = "./songs"
	defaultOutputDir     = "./build"
	defaultMaterialize   = MaterializeCopy
	defaultHashAlgorithm = "sha512"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultSongInfoURL   = "/song.json"
	defaultResURL        = "/res"
	defaultLedgerName    = "builds.db"
)

var defaultTextFields = []string{
	"title",
	"subtitle",
	"artist",
	"album",
	"composer",
	"lyricist",
	"genre",
	"language",
	"description",
	"comment",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir: defaultSourceDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir(),
		},
		Build: Build{
			Materialize:   defaultMaterialize,
			HashAlgorithm: defaultHashAlgorithm,
			CleanOutput:   true,
		},
		Rewrite: Rewrite{
			TextFields: append([]string(nil), defaultTextFields...),
		},
		Runtime: Runtime{
			APIEnable:   false,
			APIURL:      "",
			SongInfoURL: defaultSongInfoURL,
			ResURL:      defaultResURL,
		},
		Ledger: Ledger{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
