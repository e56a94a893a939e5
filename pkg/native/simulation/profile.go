package simulation

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const profileLogPrefix = "simulation:profile"

// ProfileEnv names the environment variable holding a profile path.
const ProfileEnv = "SIMULATION_PROFILE"

// Identity is the fake account and player the backend answers with.
type Identity struct {
	DID            string `yaml:"did"`
	VID            string `yaml:"vid"`
	AccessToken    string `yaml:"accessToken"`
	LoginType      string `yaml:"loginType"`
	PlayerID       int64  `yaml:"playerId"`
	PlayerName     string `yaml:"playerName"`
	PlayerImageURL string `yaml:"playerImageUrl"`
	PlayerToken    string `yaml:"playerToken"`
}

// Profile declares what the simulation backend answers.
type Profile struct {
	Name       string `yaml:"name"`
	SDKVersion string `yaml:"sdkVersion"`
	// DeliveryDelay is applied before every asynchronous reply.
	DeliveryDelay time.Duration `yaml:"deliveryDelay"`
	// Supported is the allow-list, module name to operation names.
	Supported map[string][]string `yaml:"supported"`
	Identity  Identity            `yaml:"identity"`
	// UnsupportedMessage replaces the per-operation message of NOT_SUPPORTED
	// replies when set.
	UnsupportedMessage string `yaml:"unsupportedMessage"`
	// Market is the store marketConnect selects.
	Market string `yaml:"market"`
	// Products are the market product ids the store sells.
	Products []string `yaml:"products"`
}

// LoadProfile loads a profile from file paths or environment.
// It tries paths in order: first any paths passed in, then SIMULATION_PROFILE, then defaults.
// Files that are missing or fail to parse are skipped.
func LoadProfile(paths ...string) (*Profile, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(ProfileEnv); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/simulation.yaml", "simulation.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		profile, err := ParseProfile(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse simulation profile %s: %v", profileLogPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded simulation profile %q from %s", profileLogPrefix, profile.Name, p))
		return profile, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default simulation profile", profileLogPrefix))
	return DefaultProfile(), nil
}

// ParseProfile decodes YAML and fills unset fields from the default profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s - invalid profile: %w", profileLogPrefix, err)
	}
	return MergeProfiles(DefaultProfile(), &p), nil
}

// DefaultProfile returns the built-in profile. It answers the editor subset
// of Auth and AuthV4 plus the SDK version query.
func DefaultProfile() *Profile {
	return &Profile{
		Name:       "default",
		SDKVersion: "4.24.0",
		Supported: map[string][]string{
			"Auth":          {"initialize", "getLoginType", "login", "getAccount"},
			"AuthV4":        {"setup", "signIn", "isAutoSignIn", "getPlayerInfo"},
			"Configuration": {"getHiveSDKVersion"},
		},
		Identity: Identity{
			LoginType:  "GUEST",
			PlayerID:   10000001,
			PlayerName: "guest",
		},
		Market:             "GOOGLE_PLAYSTORE",
	}
}

// MergeProfiles overlays the set fields of override onto base. The allow-list
// is replaced as a whole when override declares one.
func MergeProfiles(base, override *Profile) *Profile {
	merged := *base

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.SDKVersion != "" {
		merged.SDKVersion = override.SDKVersion
	}
	if override.DeliveryDelay > 0 {
		merged.DeliveryDelay = override.DeliveryDelay
	}
	if override.UnsupportedMessage != "" {
		merged.UnsupportedMessage = override.UnsupportedMessage
	}
	if override.Market != "" {
		merged.Market = override.Market
	}
	if len(override.Products) > 0 {
		merged.Products = append([]string(nil), override.Products...)
	}
	if len(override.Supported) > 0 {
		merged.Supported = make(map[string][]string, len(override.Supported))
		for module, ops := range override.Supported {
			merged.Supported[module] = append([]string(nil), ops...)
		}
	}

	id := override.Identity
	if id.DID != "" {
		merged.Identity.DID = id.DID
	}
	if id.VID != "" {
		merged.Identity.VID = id.VID
	}
	if id.AccessToken != "" {
		merged.Identity.AccessToken = id.AccessToken
	}
	if id.LoginType != "" {
		merged.Identity.LoginType = id.LoginType
	}
	if id.PlayerID != 0 {
		merged.Identity.PlayerID = id.PlayerID
	}
	if id.PlayerName != "" {
		merged.Identity.PlayerName = id.PlayerName
	}
	if id.PlayerImageURL != "" {
		merged.Identity.PlayerImageURL = id.PlayerImageURL
	}
	if id.PlayerToken != "" {
		merged.Identity.PlayerToken = id.PlayerToken
	}

	return &merged
}
