package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	Bytecode     []byte
	Path         string
}

// DeployData returns the creation bytecode followed by the ABI-encoded
// constructor arguments.
func (a *Artifact) DeployData(args ...interface{}) ([]byte, error) {
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("artifact %s has no creation bytecode (abstract contract or interface?)", a.ContractName)
	}
	encoded, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("encode constructor args for %s: %w", a.ContractName, err)
	}
	data := make([]byte, 0, len(a.Bytecode)+len(encoded))
	data = append(data, a.Bytecode...)
	return append(data, encoded...), nil
}

// ConstructorInputs returns the constructor parameters, empty when the
// contract declares no constructor.
func (a *Artifact) ConstructorInputs() abi.Arguments {
	return a.ABI.Constructor.Inputs
}

// ArtifactSource resolves an opaque artifact reference to a compiled contract.
type ArtifactSource interface {
	Load(name string) (*Artifact, error)
}

// bytecode accepts both "0x..." strings (Hardhat, Foundry) and
// {"object": "0x..."} objects (older solc JSON output).
type bytecode string

func (b *bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = bytecode(s)
		return nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode must be a string or object with 'object' field")
	}
	*b = bytecode(obj.Object)
	return nil
}

type artifactFile struct {
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     bytecode        `json:"bytecode"`
}

// ParseArtifact decodes a compiled contract JSON document.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("artifact %q has no abi", raw.ContractName)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi of %s: %w", raw.ContractName, err)
	}

	code := strings.TrimSpace(string(raw.Bytecode))
	if strings.Contains(code, "__") {
		return nil, fmt.Errorf("artifact %s has unlinked library placeholders", raw.ContractName)
	}
	var bin []byte
	if code != "" && code != "0x" {
		if !strings.HasPrefix(code, "0x") {
			code = "0x" + code
		}
		bin, err = hexutil.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("decode bytecode of %s: %w", raw.ContractName, err)
		}
	}

	return &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		ABI:          parsed,
		Bytecode:     bin,
	}, nil
}

// ArtifactStore loads Hardhat-style artifacts (artifacts/**/Name.json) from a
// directory by contract name. Fully qualified names ("path/File.sol:Name")
// disambiguate contracts declared in more than one source.
type ArtifactStore struct {
	root string

	indexOnce sync.Once
	indexErr  error
	byName    map[string][]string

	mu    sync.Mutex
	cache map[string]*Artifact
}

var _ ArtifactSource = (*ArtifactStore)(nil)

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{
		root:  dir,
		cache: make(map[string]*Artifact),
	}
}

// Root returns the artifact directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

func (s *ArtifactStore) index() error {
	s.indexOnce.Do(func() {
		s.byName = make(map[string][]string)
		info, err := os.Stat(s.root)
		if err != nil {
			s.indexErr = fmt.Errorf("artifacts directory %s: %w", s.root, err)
			return
		}
		if !info.IsDir() {
			s.indexErr = fmt.Errorf("artifacts path %s is not a directory", s.root)
			return
		}

		s.indexErr = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "build-info" {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if filepath.Ext(name) != ".json" || strings.HasSuffix(name, ".dbg.json") {
				return nil
			}
			contract := strings.TrimSuffix(name, ".json")
			s.byName[contract] = append(s.byName[contract], path)
			return nil
		})
	})
	return s.indexErr
}

// Names returns every contract name found under the root, sorted.
func (s *ArtifactStore) Names() ([]string, error) {
	if err := s.index(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load returns the artifact for name.
func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	s.mu.Lock()
	if a, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return a, nil
	}
	s.mu.Unlock()

	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	artifact, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	artifact.Path = path
	if artifact.ContractName == "" {
		artifact.ContractName = contractName(name)
	}

	s.mu.Lock()
	s.cache[name] = artifact
	s.mu.Unlock()
	return artifact, nil
}

func contractName(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func (s *ArtifactStore) resolve(name string) (string, error) {
	if err := s.index(); err != nil {
		return "", err
	}

	contract := contractName(name)
	candidates := s.byName[contract]
	if source, ok := strings.CutSuffix(name, ":"+contract); ok && source != name {
		suffix := filepath.Join(filepath.FromSlash(source), contract+".json")
		var matched []string
		for _, c := range candidates {
			if strings.HasSuffix(c, suffix) {
				matched = append(matched, c)
			}
		}
		candidates = matched
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no artifact found for %s under %s", name, s.root)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("artifact name %s is ambiguous (%s); use a fully qualified name",
			name, strings.Join(candidates, ", "))
	}
}

// Verify checks that every unit's artifact exists, that its constructor
// arity matches the declared arguments, that literal arguments coerce to the
// parameter types and that references land on address parameters.
func Verify(source ArtifactSource, units []engine.UnitSpec) error {
	var problems []string
	for _, unit := range units {
		artifact, err := source.Load(unit.ArtifactRef())
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", unit.Name, err))
			continue
		}
		inputs := artifact.ConstructorInputs()
		if len(inputs) != len(unit.Args) {
			problems = append(problems, fmt.Sprintf("%s: constructor takes %d arguments, %d declared",
				unit.Name, len(inputs), len(unit.Args)))
			continue
		}
		for i, arg := range unit.Args {
			param := inputs[i]
			if arg.IsRef() {
				if param.Type.T != abi.AddressTy {
					problems = append(problems, fmt.Sprintf("%s: argument %d (%s) references %s but has type %s",
						unit.Name, i, param.Name, arg.DependsOn, param.Type.String()))
				}
				continue
			}
			if _, err := CoerceValue(param.Type, arg.Value); err != nil {
				problems = append(problems, fmt.Sprintf("%s: argument %d (%s): %v", unit.Name, i, param.Name, err))
			}
		}
	}
	if len(problems) > 0 {
		return engine.NewConfigError(
			fmt.Sprintf("artifact verification failed:\n  %s", strings.Join(problems, "\n  ")), nil).
			WithDetail("problems", problems)
	}
	return nil
}
