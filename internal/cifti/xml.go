package cifti

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const indexTypeBrainModels = "CIFTI_INDEX_TYPE_BRAIN_MODELS"

// ErrNoBrainModels is returned when no matrix dimension maps to brain models
var ErrNoBrainModels = errors.New("CIFTI file has no brain model axis")

type ciftiDoc struct {
	XMLName xml.Name    `xml:"CIFTI"`
	Version string      `xml:"Version,attr"`
	Matrix  ciftiMatrix `xml:"Matrix"`
}

type ciftiMatrix struct {
	Maps []indicesMap `xml:"MatrixIndicesMap"`
}

type indicesMap struct {
	AppliesTo   string          `xml:"AppliesToMatrixDimension,attr"`
	Type        string          `xml:"IndicesMapToDataType,attr"`
	BrainModels []brainModelXML `xml:"BrainModel"`
	NamedMaps   []namedMap      `xml:"NamedMap"`
}

type namedMap struct {
	MapName string `xml:"MapName"`
}

type brainModelXML struct {
	IndexOffset             int    `xml:"IndexOffset,attr"`
	IndexCount              int    `xml:"IndexCount,attr"`
	ModelType               string `xml:"ModelType,attr"`
	BrainStructure          string `xml:"BrainStructure,attr"`
	SurfaceNumberOfVertices int    `xml:"SurfaceNumberOfVertices,attr,omitempty"`
	VertexIndices           string `xml:"VertexIndices,omitempty"`
	VoxelIndicesIJK         string `xml:"VoxelIndicesIJK,omitempty"`
}

// parseAxis decodes the CIFTI XML and returns the brain model axis and the
// matrix dimension (0 or 1) it applies to.
func parseAxis(payload []byte) (*BrainModelAxis, int, error) {
	var doc ciftiDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, 0, errors.Wrap(err, "decoding CIFTI XML")
	}

	for _, m := range doc.Matrix.Maps {
		if m.Type != indexTypeBrainModels {
			continue
		}
		dim, err := brainModelDim(m.AppliesTo)
		if err != nil {
			return nil, 0, err
		}

		axis := &BrainModelAxis{Models: make([]BrainModel, 0, len(m.BrainModels))}
		for _, bm := range m.BrainModels {
			model, err := bm.model()
			if err != nil {
				return nil, 0, err
			}
			axis.Models = append(axis.Models, model)
		}
		return axis, dim, nil
	}
	return nil, 0, ErrNoBrainModels
}

// brainModelDim prefers dimension 1 when a map applies to both.
func brainModelDim(appliesTo string) (int, error) {
	dims, err := parseInts(strings.ReplaceAll(appliesTo, ",", " "))
	if err != nil || len(dims) == 0 {
		return 0, errors.Errorf("bad AppliesToMatrixDimension %q", appliesTo)
	}
	for _, d := range dims {
		if d == 1 {
			return 1, nil
		}
	}
	if dims[0] != 0 {
		return 0, errors.Errorf("brain models applied to unsupported dimension %d", dims[0])
	}
	return 0, nil
}

func (bm brainModelXML) model() (BrainModel, error) {
	model := BrainModel{
		Name:            bm.BrainStructure,
		Type:            ModelType(bm.ModelType),
		Offset:          bm.IndexOffset,
		Count:           bm.IndexCount,
		SurfaceVertices: bm.SurfaceNumberOfVertices,
	}

	switch model.Type {
	case ModelSurface:
		vertices, err := parseInts(bm.VertexIndices)
		if err != nil {
			return model, errors.Wrapf(err, "vertex indices of %s", bm.BrainStructure)
		}
		model.Vertices = vertices
	case ModelVoxels:
		ijk, err := parseInts(bm.VoxelIndicesIJK)
		if err != nil {
			return model, errors.Wrapf(err, "voxel indices of %s", bm.BrainStructure)
		}
		if len(ijk)%3 != 0 {
			return model, errors.Errorf("voxel indices of %s are not triplets", bm.BrainStructure)
		}
		model.Voxels = make([]Voxel, len(ijk)/3)
		for i := range model.Voxels {
			model.Voxels[i] = Voxel{ijk[3*i], ijk[3*i+1], ijk[3*i+2]}
		}
	}
	return model, nil
}

func parseInts(text string) ([]int, error) {
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

// encodeAxis renders a two dimensional CIFTI document: nScalars named maps on
// the other dimension and the brain models on dim.
func encodeAxis(axis *BrainModelAxis, dim int, nScalars int) ([]byte, error) {
	scalars := indicesMap{
		AppliesTo: strconv.Itoa(1 - dim),
		Type:      "CIFTI_INDEX_TYPE_SCALARS",
	}
	for i := 0; i < nScalars; i++ {
		scalars.NamedMaps = append(scalars.NamedMaps, namedMap{MapName: "map_" + strconv.Itoa(i)})
	}
	models := indicesMap{
		AppliesTo: strconv.Itoa(dim),
		Type:      indexTypeBrainModels,
	}
	for _, m := range axis.Models {
		bm := brainModelXML{
			IndexOffset:    m.Offset,
			IndexCount:     m.Count,
			ModelType:      string(m.Type),
			BrainStructure: m.Name,
		}
		if m.IsSurface() {
			bm.SurfaceNumberOfVertices = m.SurfaceVertices
			bm.VertexIndices = joinInts(m.Vertices)
		} else {
			ijk := make([]int, 0, 3*len(m.Voxels))
			for _, v := range m.Voxels {
				ijk = append(ijk, v[0], v[1], v[2])
			}
			bm.VoxelIndicesIJK = joinInts(ijk)
		}
		models.BrainModels = append(models.BrainModels, bm)
	}

	doc := ciftiDoc{Version: "2"}
	if dim == 1 {
		doc.Matrix.Maps = []indicesMap{scalars, models}
	} else {
		doc.Matrix.Maps = []indicesMap{models, scalars}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding CIFTI XML")
	}
	return append([]byte(xml.Header), out...), nil
}
