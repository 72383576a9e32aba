package config

import (
	"fmt"
	"math"
	"os"

	"github.com/san-kum/stiffnet/internal/dynamo"
	"github.com/san-kum/stiffnet/internal/network"
	"gopkg.in/yaml.v3"
)

// NetworkFile is the on-disk network description.
type NetworkFile struct {
	Species   []SpeciesSpec  `yaml:"species"`
	Reactions []ReactionSpec `yaml:"reactions"`
}

type SpeciesSpec struct {
	Name string `yaml:"name"`
	Z    int    `yaml:"z"`
	A    int    `yaml:"a"`
}

type ReactionSpec struct {
	Name      string   `yaml:"name,omitempty"`
	Reactants []string `yaml:"reactants"`
	Products  []string `yaml:"products"`
	Rate      RateSpec `yaml:"rate"`
}

// RateSpec gives exactly one of a constant rate, a half-life in seconds or
// a list of seven-coefficient Reaclib fits.
type RateSpec struct {
	Constant *float64    `yaml:"constant,omitempty"`
	HalfLife *float64    `yaml:"half_life,omitempty"`
	Reaclib  [][]float64 `yaml:"reaclib,omitempty"`
}

func (r RateSpec) build() (network.RateFunc, error) {
	set := 0
	if r.Constant != nil {
		set++
	}
	if r.HalfLife != nil {
		set++
	}
	if len(r.Reaclib) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("rate needs exactly one of constant, half_life, reaclib: %w", dynamo.ErrInvalidConfig)
	}
	switch {
	case r.Constant != nil:
		return network.ConstantRate(*r.Constant), nil
	case r.HalfLife != nil:
		if *r.HalfLife <= 0 {
			return nil, fmt.Errorf("half_life %g: %w", *r.HalfLife, dynamo.ErrInvalidConfig)
		}
		return network.ConstantRate(math.Ln2 / *r.HalfLife), nil
	}
	sets := make([]network.ReaclibSet, len(r.Reaclib))
	for i, coeffs := range r.Reaclib {
		if len(coeffs) != len(sets[i]) {
			return nil, fmt.Errorf("reaclib set %d has %d coefficients: %w", i, len(coeffs), dynamo.ErrInvalidConfig)
		}
		copy(sets[i][:], coeffs)
	}
	return network.Reaclib(sets...), nil
}

func LoadNetwork(path string) (*network.Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	net, err := ParseNetwork(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

func ParseNetwork(data []byte) (*network.Network, error) {
	var file NetworkFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	species := make([]network.Species, len(file.Species))
	for i, s := range file.Species {
		species[i] = network.Species{Name: s.Name, Z: s.Z, A: s.A}
	}
	reactions := make([]*network.Reaction, 0, len(file.Reactions))
	for i, spec := range file.Reactions {
		if len(spec.Reactants) == 0 {
			return nil, fmt.Errorf("reaction %d has no reactants: %w", i, dynamo.ErrInvalidConfig)
		}
		rate, err := spec.Rate.build()
		if err != nil {
			return nil, fmt.Errorf("reaction %d: %w", i, err)
		}
		reactions = append(reactions, &network.Reaction{
			Name:      spec.Name,
			Reactants: spec.Reactants,
			Products:  spec.Products,
			Rate:      rate,
		})
	}
	return network.New(species, reactions)
}

// ZonesFile is the on-disk zone and link description.
type ZonesFile struct {
	Zones []ZoneSpec `yaml:"zones"`
	Links []LinkSpec `yaml:"links,omitempty"`
}

// ZoneSpec describes one zone. T9 and Rho are shorthands for the
// corresponding properties.
type ZoneSpec struct {
	Labels        []string           `yaml:"labels"`
	T9            *float64           `yaml:"t9,omitempty"`
	Rho           *float64           `yaml:"rho,omitempty"`
	MassFractions map[string]float64 `yaml:"mass_fractions"`
	Properties    []PropertySpec     `yaml:"properties,omitempty"`
}

type PropertySpec struct {
	Name  string   `yaml:"name"`
	Tags  []string `yaml:"tags,omitempty"`
	Value string   `yaml:"value"`
}

type LinkSpec struct {
	From []string `yaml:"from"`
	To   []string `yaml:"to"`
	Rate float64  `yaml:"rate"`
}

func labelsOf(labels []string) [3]string {
	out := [3]string{"0", "0", "0"}
	for i := 0; i < len(labels) && i < 3; i++ {
		out[i] = labels[i]
	}
	return out
}

func LoadZones(path string, net *network.Network) (*network.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model, err := ParseZones(data, net)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

func ParseZones(data []byte, net *network.Network) (*network.Model, error) {
	var file ZonesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Zones) == 0 {
		return nil, dynamo.ErrNoZones
	}
	model := network.NewModel(net)
	for _, spec := range file.Zones {
		z, err := spec.build(net)
		if err != nil {
			return nil, err
		}
		if err := model.AddZone(z); err != nil {
			return nil, err
		}
	}
	for _, l := range file.Links {
		if err := model.AddLink(network.Link{From: labelsOf(l.From), To: labelsOf(l.To), Rate: l.Rate}); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func (spec ZoneSpec) build(net *network.Network) (*network.Zone, error) {
	z := network.NewZone(net, spec.Labels...)
	for _, p := range spec.Properties {
		if len(p.Tags) > 2 {
			return nil, fmt.Errorf("zone %s: property %q has %d tags: %w", z, p.Name, len(p.Tags), dynamo.ErrInvalidConfig)
		}
		z.SetProperty(p.Name, p.Value, p.Tags...)
	}
	if spec.T9 != nil {
		z.SetFloatProperty(network.PropT9, *spec.T9)
	}
	if spec.Rho != nil {
		z.SetFloatProperty(network.PropRho, *spec.Rho)
	}
	x := make([]float64, net.NumberOfSpecies())
	for name, frac := range spec.MassFractions {
		s, ok := net.SpeciesByName(name)
		if !ok {
			return nil, fmt.Errorf("zone %s: unknown species %s: %w", z, name, dynamo.ErrInvalidConfig)
		}
		x[s.Index] = frac
	}
	if err := z.SetMassFractions(x); err != nil {
		return nil, err
	}
	return z, nil
}

// SaveZones writes the model's zones and links in the format LoadZones
// reads. Zero mass fractions are omitted.
func SaveZones(path string, model *network.Model) error {
	data, err := MarshalZones(model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func MarshalZones(model *network.Model) ([]byte, error) {
	var file ZonesFile
	species := model.Network().Species()
	for _, z := range model.Zones() {
		labels := z.Labels()
		spec := ZoneSpec{
			Labels:        labels[:],
			MassFractions: make(map[string]float64),
		}
		for i, x := range z.MassFractions() {
			if x != 0 {
				spec.MassFractions[species[i].Name] = x
			}
		}
		for _, p := range z.Properties() {
			spec.Properties = append(spec.Properties, PropertySpec{Name: p.Name, Tags: p.Tags, Value: p.Value})
		}
		file.Zones = append(file.Zones, spec)
	}
	for _, l := range model.Links() {
		file.Links = append(file.Links, LinkSpec{From: l.From[:], To: l.To[:], Rate: l.Rate})
	}
	return yaml.Marshal(&file)
}
