package io

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v3"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
)

// StructureManifest describes a grayordinate axis next to a plain matrix file
type StructureManifest struct {
	// GrayordinateAxis is "last" (columns, default) or "first" (rows).
	GrayordinateAxis string          `yaml:"grayordinate_axis"`
	Structures       []StructureSpec `yaml:"structures"`
}

// StructureSpec is one structure of a StructureManifest
type StructureSpec struct {
	Name            string  `yaml:"name"`
	Type            string  `yaml:"type"`
	Offset          int     `yaml:"offset"`
	Count           int     `yaml:"count"`
	SurfaceVertices int     `yaml:"surface_vertices,omitempty"`
	Vertices        []int   `yaml:"vertices,omitempty"`
	Voxels          [][]int `yaml:"voxels,omitempty"`
}

// ReadStructureManifest parses a YAML structure map
func ReadStructureManifest(path string) (*StructureManifest, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading structure manifest")
	}
	var m StructureManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &m, nil
}

// Axis converts the manifest into a brain model axis and its data dimension.
// Surface entries without explicit vertices map grayordinate k to vertex k.
func (m *StructureManifest) Axis() (*cifti.BrainModelAxis, int, error) {
	dim := 1
	switch strings.ToLower(m.GrayordinateAxis) {
	case "", "last":
	case "first":
		dim = 0
	default:
		return nil, 0, errors.Errorf("grayordinate_axis must be first or last, got %q", m.GrayordinateAxis)
	}

	axis := &cifti.BrainModelAxis{}
	for _, s := range m.Structures {
		model := cifti.BrainModel{
			Name:            s.Name,
			Type:            modelType(s.Type),
			Offset:          s.Offset,
			Count:           s.Count,
			SurfaceVertices: s.SurfaceVertices,
		}
		if model.IsSurface() {
			model.Vertices = s.Vertices
			if model.Vertices == nil {
				model.Vertices = make([]int, s.Count)
				for i := range model.Vertices {
					model.Vertices[i] = i
				}
			}
		}
		for _, v := range s.Voxels {
			if len(v) != 3 {
				return nil, 0, errors.Errorf("structure %s: voxel %v is not an IJK triplet", s.Name, v)
			}
			model.Voxels = append(model.Voxels, cifti.Voxel{v[0], v[1], v[2]})
		}
		axis.Models = append(axis.Models, model)
	}
	return axis, dim, nil
}

func modelType(t string) cifti.ModelType {
	switch strings.ToLower(t) {
	case "", "surface", strings.ToLower(string(cifti.ModelSurface)):
		return cifti.ModelSurface
	case "voxels", "volume", strings.ToLower(string(cifti.ModelVoxels)):
		return cifti.ModelVoxels
	}
	return cifti.ModelType(t)
}

// ReadMatrix loads a .npy or .csv matrix
func ReadMatrix(path string) (*mat64.Dense, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return NpytoMat64(path)
	case ".csv":
		return CSVtoMat64(path)
	}
	return nil, errors.Errorf("unsupported matrix format %q", filepath.Ext(path))
}

// WriteMatrix stores a matrix as .npy, .csv or .bin, chosen by extension
func WriteMatrix(path string, matrix *mat64.Dense) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return Mat64toNpy(path, matrix)
	case ".csv":
		return Mat64toCSV(path, matrix)
	case ".bin":
		return Mat64toBin(path, matrix)
	}
	return errors.Errorf("unsupported matrix format %q", filepath.Ext(path))
}

// LoadGrayordinates builds a container from a matrix file and a structure manifest
func LoadGrayordinates(dataPath, manifestPath string) (*cifti.Container, error) {
	manifest, err := ReadStructureManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	axis, dim, err := manifest.Axis()
	if err != nil {
		return nil, err
	}
	data, err := ReadMatrix(dataPath)
	if err != nil {
		return nil, err
	}

	c := &cifti.Container{Data: data, Axis: axis, BrainModelDim: dim}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s against %s", dataPath, manifestPath)
	}
	return c, nil
}
