package config

// DefaultTargets is the built-in Path of Exile speedtest server list used
// when no targets file is given.
func DefaultTargets() []Target {
	return []Target{
		{ID: "Texas (US)", Address: "us.speedtest.pathofexile.com"},
		{ID: "Amsterdam (EU)", Address: "eu.speedtest.pathofexile.com"},
		{ID: "Singapore", Address: "sg.speedtest.pathofexile.com"},
		{ID: "Australia", Address: "au.speedtest.pathofexile.com"},
		{ID: "London (EU)", Address: "lon.speedtest.pathofexile.com"},
		{ID: "Frankfurt (EU)", Address: "fra.speedtest.pathofexile.com"},
		{ID: "Washington DC (US)", Address: "wdc.speedtest.pathofexile.com"},
		{ID: "California (US)", Address: "sjc.speedtest.pathofexile.com"},
		{ID: "Milan (EU)", Address: "mil.speedtest.pathofexile.com"},
		{ID: "São Paulo (BR)", Address: "br.speedtest.pathofexile.com"},
		{ID: "Paris (EU)", Address: "par.speedtest.pathofexile.com"},
		{ID: "Moscow (RU)", Address: "mo.speedtest.pathofexile.com"},
		{ID: "Auckland (NZ)", Address: "nz.speedtest.pathofexile.com"},
		{ID: "Japan", Address: "jp.speedtest.pathofexile.com"},
		{ID: "Seoul (KR)", Address: "kr.speedtest.pathofexile.com"},
		{ID: "Toronto (CA)", Address: "tor.speedtest.pathofexile.com"},
		{ID: "South Africa", Address: "zaf-m.speedtest.pathofexile.com"},
		{ID: "Hong Kong", Address: "hkg.speedtest.pathofexile.com"},
	}
}

// Default returns the configuration used without a targets file.
func Default(overrides CLIOverrides) *Config {
	cfg := &Config{Global: DefaultGlobalOptions(), Targets: DefaultTargets()}
	applyCLIOverrides(&cfg.Global, overrides)
	return cfg
}
