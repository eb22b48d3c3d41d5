// Package hw describes the scoreboard resources of a target: how many
// tokens exist, how far back in-order pipes may be addressed by a
// distance, and how long out-of-order operations are expected to take.
package hw

import (
	"os"

	"swsb/core/gir"
	IT "swsb/core/gir/instrkind"
	P "swsb/core/gir/pipe"
	SF "swsb/core/gir/sfid"

	"github.com/nikandfor/errors"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Latencies are expected cycle counts. They only steer token reuse,
// correctness never depends on them.
type Latencies struct {
	Math      int `yaml:"math"`
	SLM       int `yaml:"slm"`
	Memory    int `yaml:"memory"`
	MemoryL3  int `yaml:"memory_l3"`
	Sampler   int `yaml:"sampler"`
	SamplerL3 int `yaml:"sampler_l3"`
	DpasWrite int `yaml:"dpas_write"`
	Gateway   int `yaml:"gateway"`
}

type Model struct {
	Name        string `yaml:"name"`
	TotalTokens int    `yaml:"tokens"`
	GRFSize     int    `yaml:"grf_size"`
	NumGRF      int    `yaml:"grf_count"`
	NumACC      int    `yaml:"acc_count"`
	NumFlag     int    `yaml:"flag_count"`

	MaxALUDist  int `yaml:"max_alu_distance"`
	MaxLongDist int `yaml:"max_long_distance"`
	MaxMathDist int `yaml:"max_math_distance"`
	// MaxDistValue is the largest distance the encoding can carry
	MaxDistValue int `yaml:"max_distance_value"`

	MathUsesToken bool `yaml:"math_uses_token"`
	L3Hit         bool `yaml:"l3_hit"`
	// Quick selects round-robin token assignment
	Quick bool `yaml:"quick"`

	Latency Latencies `yaml:"latency"`
}

func Default() *Model {
	return &Model{
		Name:         "xe",
		TotalTokens:  16,
		GRFSize:      32,
		NumGRF:       128,
		NumACC:       4,
		NumFlag:      2,
		MaxALUDist:   11,
		MaxLongDist:  15,
		MaxMathDist:  18,
		MaxDistValue: 7,
		Latency: Latencies{
			Math:      17,
			SLM:       25,
			Memory:    50,
			MemoryL3:  150,
			Sampler:   60,
			SamplerL3: 210,
			DpasWrite: 28,
			Gateway:   32,
		},
	}
}

// Load reads a YAML model; fields missing from the file keep their
// default value
func Load(path string) (*Model, error) {
	m := Default()
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read hardware model")
	}
	err = yaml.Unmarshal(text, m)
	if err != nil {
		return nil, errors.Wrap(err, "decode hardware model %v", path)
	}
	return m, m.Validate()
}

// ApplyEnv overrides the model with SWSB_* environment variables
func (this *Model) ApplyEnv() {
	this.TotalTokens = env.Int("SWSB_TOKENS", this.TotalTokens)
	this.NumGRF = env.Int("SWSB_GRF_COUNT", this.NumGRF)
	if env.Bool("SWSB_MATH_TOKEN") {
		this.MathUsesToken = true
	}
	if env.Bool("SWSB_L3") {
		this.L3Hit = true
	}
	if env.Bool("SWSB_QUICK") {
		this.Quick = true
	}
}

func (this *Model) Validate() error {
	if this.TotalTokens < 1 || this.TotalTokens > 32 {
		return errors.New("token count %v outside of [1, 32]", this.TotalTokens)
	}
	if this.GRFSize <= 0 || this.GRFSize&(this.GRFSize-1) != 0 {
		return errors.New("register size %v is not a power of two", this.GRFSize)
	}
	if this.NumGRF <= 0 || this.NumACC < 0 || this.NumFlag < 0 {
		return errors.New("invalid register file %v/%v/%v", this.NumGRF, this.NumACC, this.NumFlag)
	}
	if this.MaxDistValue < 1 {
		return errors.New("maximum distance value must be positive")
	}
	for _, d := range []int{this.MaxALUDist, this.MaxLongDist, this.MaxMathDist} {
		if d < this.MaxDistValue {
			return errors.New("pipe distance %v below encodable distance %v", d, this.MaxDistValue)
		}
	}
	return nil
}

// MaxDist is the distance after which an in-order producer of pipe p
// is known to have completed
func (this *Model) MaxDist(p P.Pipe) int {
	switch p {
	case P.Long:
		return this.MaxLongDist
	case P.Math:
		return this.MaxMathDist
	case P.Int, P.Float:
		return this.MaxALUDist
	}
	return 0
}

// NumBuckets is the number of bucket index slots: one per GRF, then
// accumulators, then flags
func (this *Model) NumBuckets() int {
	return this.NumGRF + this.NumACC + this.NumFlag
}

// WriteLatency is the expected time for instr to complete
func (this *Model) WriteLatency(instr *gir.Instr) int {
	if instr.Latency > 0 {
		return instr.Latency
	}
	switch instr.T {
	case IT.Math:
		return this.Latency.Math
	case IT.Dpas:
		return this.Latency.DpasWrite
	case IT.Send:
		switch instr.SFID {
		case SF.SLM:
			return this.Latency.SLM
		case SF.Sampler:
			if this.L3Hit {
				return this.Latency.SamplerL3
			}
			return this.Latency.Sampler
		case SF.Gateway:
			return this.Latency.Gateway
		}
		if this.L3Hit {
			return this.Latency.MemoryL3
		}
		return this.Latency.Memory
	}
	return 0
}
