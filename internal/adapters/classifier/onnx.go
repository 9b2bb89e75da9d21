package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// ortEnv guards the process-wide ONNX Runtime initialisation.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXModel runs a classifier exported to ONNX with a float [N, 3] input and
// an int64 label output.
type ONNXModel struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

func LoadONNXModel(modelPath, libPath string) (*ONNXModel, error) {
	data, err := readArtifactFile(modelPath, "model")
	if err != nil {
		return nil, err
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime from %s: %w", libPath, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model info: %w", err)
	}
	inputName, outputName, err := selectTensors(inputs, outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data, []string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

// selectTensors takes the first input and the first int64 output, which is
// the predicted label in exported tree ensembles.
func selectTensors(inputs, outputs []ort.InputOutputInfo) (string, string, error) {
	if len(inputs) != 1 {
		return "", "", fmt.Errorf("onnx: expected 1 input, got %d", len(inputs))
	}
	if dims := inputs[0].Dimensions; len(dims) != 2 || (dims[1] != numFeatures && dims[1] > 0) {
		return "", "", fmt.Errorf("onnx: expected input shape [N, %d], got %v", numFeatures, dims)
	}
	for _, out := range outputs {
		if out.DataType == ort.TensorElementDataTypeInt64 {
			return inputs[0].Name, out.Name, nil
		}
	}
	return "", "", fmt.Errorf("onnx: model has no int64 label output")
}

func (m *ONNXModel) Predict(x [numFeatures]float64) (domain.Label, error) {
	in := make([]float32, numFeatures)
	for i, v := range x {
		in[i] = float32(v)
	}

	input, err := ort.NewTensor(ort.NewShape(1, numFeatures), in)
	if err != nil {
		return domain.LabelBenign, fmt.Errorf("onnx: create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return domain.LabelBenign, fmt.Errorf("onnx: create output tensor: %w", err)
	}
	defer output.Destroy()

	m.mu.Lock()
	err = m.session.Run([]ort.Value{input}, []ort.Value{output})
	m.mu.Unlock()
	if err != nil {
		return domain.LabelBenign, fmt.Errorf("onnx: inference failed: %w", err)
	}

	if output.GetData()[0] != 0 {
		return domain.LabelBurst, nil
	}
	return domain.LabelBenign, nil
}

func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
