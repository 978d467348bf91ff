package mesh

// Config is the unified service configuration, loaded from YAML and
// overridable per field from the command line.
type Config struct {
	Registration RegistrationSettings `yaml:"registration"`
	MQTT         MQTTSettings         `yaml:"mqtt"`
	Snapshot     SnapshotSettings     `yaml:"snapshot"`
}

// RegistrationSettings selects and parameterizes the registration drivers.
type RegistrationSettings struct {
	// Mode is "pyramid", "nonrigid" or "rigid".
	Mode string `yaml:"mode"`

	NumIterations    int `yaml:"numIterations"`
	NumPyramidLayers int `yaml:"numPyramidLayers"`

	DownsampleFloatStart  float64 `yaml:"downsampleFloatStart"`
	DownsampleFloatEnd    float64 `yaml:"downsampleFloatEnd"`
	DownsampleTargetStart float64 `yaml:"downsampleTargetStart"`
	DownsampleTargetEnd   float64 `yaml:"downsampleTargetEnd"`

	CorrespondencesSymmetric     bool `yaml:"correspondencesSymmetric"`
	CorrespondencesNumNeighbours int  `yaml:"correspondencesNumNeighbours"`

	InlierKappa float64 `yaml:"inlierKappa"`

	TransformSigma                     float64 `yaml:"transformSigma"`
	TransformNumNeighbours             int     `yaml:"transformNumNeighbours"`
	TransformNumViscousIterationsStart int     `yaml:"transformNumViscousIterationsStart"`
	TransformNumViscousIterationsEnd   int     `yaml:"transformNumViscousIterationsEnd"`
	TransformNumElasticIterationsStart int     `yaml:"transformNumElasticIterationsStart"`
	TransformNumElasticIterationsEnd   int     `yaml:"transformNumElasticIterationsEnd"`

	AllowScaling bool `yaml:"allowScaling"`

	// FlagBoundaries masks open-boundary vertices of both meshes before
	// registration.
	FlagBoundaries bool `yaml:"flagBoundaries"`
}

// MQTTSettings configures the optional progress publisher. An empty broker
// disables MQTT entirely.
type MQTTSettings struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TopicPrefix defaults to "surfalign".
	TopicPrefix string `yaml:"topicPrefix"`
}

// SnapshotSettings configures the optional per-iteration wireframe renders.
// An empty Dir disables snapshots.
type SnapshotSettings struct {
	Dir string `yaml:"dir"`
	// Every is the iteration stride between renders.
	Every  int `yaml:"every"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultConfig returns the full default configuration: a three-level
// pyramid registration with symmetric correspondences, no MQTT and no
// snapshots.
func DefaultConfig() *Config {
	return &Config{
		Registration: RegistrationSettings{
			Mode:                               "pyramid",
			NumIterations:                      60,
			NumPyramidLayers:                   3,
			DownsampleFloatStart:               90,
			DownsampleTargetStart:              90,
			CorrespondencesSymmetric:           true,
			CorrespondencesNumNeighbours:       5,
			InlierKappa:                        4.0,
			TransformSigma:                     3.0,
			TransformNumNeighbours:             10,
			TransformNumViscousIterationsStart: 50,
			TransformNumViscousIterationsEnd:   1,
			TransformNumElasticIterationsStart: 50,
			TransformNumElasticIterationsEnd:   1,
			FlagBoundaries:                     true,
		},
		MQTT: MQTTSettings{
			TopicPrefix: "surfalign",
		},
		Snapshot: SnapshotSettings{
			Every:  10,
			Width:  800,
			Height: 600,
		},
	}
}

// RigidConfig derives the rigid driver configuration.
func (s RegistrationSettings) RigidConfig() RigidConfig {
	cfg := DefaultRigidConfig()
	cfg.NumIterations = s.NumIterations
	cfg.AllowScaling = s.AllowScaling
	cfg.Correspondence = s.correspondenceConfig()
	cfg.Inlier = InlierConfig{Kappa: s.InlierKappa}
	return cfg
}

// NonrigidConfig derives the single-resolution non-rigid driver
// configuration.
func (s RegistrationSettings) NonrigidConfig() NonrigidConfig {
	return NonrigidConfig{
		NumIterations:          s.NumIterations,
		Correspondence:         s.correspondenceConfig(),
		Inlier:                 InlierConfig{Kappa: s.InlierKappa},
		SmoothingNeighbours:    s.TransformNumNeighbours,
		SigmaSmoothing:         s.TransformSigma,
		ViscousIterationsStart: s.TransformNumViscousIterationsStart,
		ViscousIterationsEnd:   s.TransformNumViscousIterationsEnd,
		ElasticIterationsStart: s.TransformNumElasticIterationsStart,
		ElasticIterationsEnd:   s.TransformNumElasticIterationsEnd,
	}
}

// PyramidConfig derives the pyramid driver configuration.
func (s RegistrationSettings) PyramidConfig() PyramidConfig {
	return PyramidConfig{
		NumIterations:         s.NumIterations,
		NumPyramidLayers:      s.NumPyramidLayers,
		DownsampleFloatStart:  s.DownsampleFloatStart,
		DownsampleFloatEnd:    s.DownsampleFloatEnd,
		DownsampleTargetStart: s.DownsampleTargetStart,
		DownsampleTargetEnd:   s.DownsampleTargetEnd,
		Nonrigid:              s.NonrigidConfig(),
	}
}

func (s RegistrationSettings) correspondenceConfig() CorrespondenceConfig {
	return CorrespondenceConfig{
		Symmetric:     s.CorrespondencesSymmetric,
		NumNeighbours: s.CorrespondencesNumNeighbours,
	}
}
