// storage writes a training run's artifacts to a per-run directory: the grid, logged and
// replayed trajectories, the value table and the return series. The text formats are the
// ones read by the racetrack viewer: comma-separated integers, one record per line.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"racetrack/reinforcement"
	. "racetrack/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Artifact file names within a run directory.
const (
	GRID_FILE         = "grid.txt"
	TRAJECTORIES_FILE = "trajectories.txt"
	POLICY_PATH_FILE  = "policy_path.txt"
	VALUES_FILE       = "values.yaml"
	RETURNS_FILE      = "returns.txt"
	REPORT_FILE       = "report.html"
)

// ErrMalformedRecord is returned when an artifact line cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// RunDir is a directory holding one run's artifacts, named by its start time and a short
// unique id so that concurrent sweep runs never collide.
type RunDir struct {
	Path string
	ID   string
}

// NewRunDir creates <root>/<timestamp>_<id>.
func NewRunDir(root string, now time.Time) (*RunDir, error) {
	id := uuid.New().String()[:8]
	path := filepath.Join(root, now.Format("20060102-150405")+"_"+id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &RunDir{Path: path, ID: id}, nil
}

// File returns the path of the named artifact within the run directory.
func (rd *RunDir) File(name string) string {
	return filepath.Join(rd.Path, name)
}

// writeFile creates @path and writes it with @fn through a buffered writer.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(f)
	if err = fn(w); err != nil {
		return
	}
	return w.Flush()
}

// WriteGrid writes one line per row of comma-separated cell codes.
func WriteGrid(w io.Writer, grid [][]CellKind) error {
	for _, row := range grid {
		codes := make([]string, len(row))
		for x, cell := range row {
			codes[x] = strconv.Itoa(int(cell))
		}
		if _, err := fmt.Fprintln(w, strings.Join(codes, ",")); err != nil {
			return err
		}
	}
	return nil
}

// ReadGrid parses a grid written by WriteGrid.
func ReadGrid(r io.Reader) (grid [][]CellKind, err error) {
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ints []int
		if ints, err = parseInts(line); err != nil {
			return nil, fmt.Errorf("grid line %d: %w", lineNum, err)
		}
		row := make([]CellKind, len(ints))
		for x, code := range ints {
			if code < int(OUTSIDE) || code > int(FINISH) {
				return nil, fmt.Errorf("%w: grid line %d: cell code %d", ErrMalformedRecord, lineNum, code)
			}
			row[x] = CellKind(code)
		}
		grid = append(grid, row)
	}
	err = scanner.Err()
	return
}

func SaveGrid(path string, grid [][]CellKind) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteGrid(w, grid)
	})
}

func LoadGrid(path string) ([][]CellKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGrid(f)
}

// WriteTrajectory writes an "E <episode>" boundary line followed by one "x,y,vx,vy" line
// per record.
func WriteTrajectory(w io.Writer, episode int, trajectory Trajectory) error {
	if _, err := fmt.Fprintf(w, "E %d\n", episode); err != nil {
		return err
	}
	for _, step := range trajectory {
		p, v := step.Position, step.Velocity
		if _, err := fmt.Fprintf(w, "%d,%d,%d,%d\n", p.X, p.Y, v.VX, v.VY); err != nil {
			return err
		}
	}
	return nil
}

// LoggedEpisode is one episode read back from a trajectory file. Actions are not logged.
type LoggedEpisode struct {
	Episode    int
	Trajectory Trajectory
}

// ReadTrajectories parses a file of WriteTrajectory output.
func ReadTrajectories(r io.Reader) (episodes []LoggedEpisode, err error) {
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "E"):
			var n int
			if n, err = strconv.Atoi(strings.TrimSpace(line[1:])); err != nil {
				return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedRecord, lineNum, line)
			}
			episodes = append(episodes, LoggedEpisode{Episode: n})
		default:
			if len(episodes) == 0 {
				return nil, fmt.Errorf("%w: line %d: record before episode marker", ErrMalformedRecord, lineNum)
			}
			var ints []int
			if ints, err = parseInts(line); err != nil || len(ints) != 4 {
				return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedRecord, lineNum, line)
			}
			cur := &episodes[len(episodes)-1]
			cur.Trajectory = append(cur.Trajectory, Step{
				Position: Position{X: ints[0], Y: ints[1]},
				Velocity: Velocity{VX: ints[2], VY: ints[3]},
			})
		}
	}
	err = scanner.Err()
	return
}

// SavePath writes the replayed greedy trajectory, as episode 0.
func SavePath(path string, trajectory Trajectory) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteTrajectory(w, 0, trajectory)
	})
}

// SaveReturns writes one episode return per line.
func SaveReturns(path string, returns []float64) error {
	return writeFile(path, func(w io.Writer) error {
		for _, g := range returns {
			if _, err := fmt.Fprintln(w, strconv.FormatFloat(g, 'g', -1, 64)); err != nil {
				return err
			}
		}
		return nil
	})
}

// StateValue is the serialized form of a single value table entry.
type StateValue struct {
	X     int     `yaml:"x"`
	Y     int     `yaml:"y"`
	VX    int     `yaml:"vx"`
	VY    int     `yaml:"vy"`
	Value float64 `yaml:"value"`
	Count int     `yaml:"count"`
}

// ValueDump is the values.yaml document. Only visited states are listed; every other state
// holds the sentinel.
type ValueDump struct {
	Sentinel float64      `yaml:"sentinel"`
	States   []StateValue `yaml:"states"`
}

// DumpValues converts the table's visited states into their serialized form, sorted.
func DumpValues(vt *reinforcement.ValueTable) ValueDump {
	dump := ValueDump{Sentinel: vt.Sentinel()}
	for _, key := range vt.Keys() {
		entry, _ := vt.Entry(key)
		if entry.Count == 0 {
			continue
		}
		dump.States = append(dump.States, StateValue{
			X:     key.X,
			Y:     key.Y,
			VX:    key.VX,
			VY:    key.VY,
			Value: entry.Value,
			Count: entry.Count,
		})
	}
	return dump
}

func SaveValues(path string, vt *reinforcement.ValueTable) error {
	return writeFile(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(DumpValues(vt)); err != nil {
			return err
		}
		return enc.Close()
	})
}

// LoadValues reads a values.yaml document back into a dump.
func LoadValues(path string) (dump ValueDump, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return
	}
	err = yaml.Unmarshal(data, &dump)
	return
}

func parseInts(line string) ([]int, error) {
	fields := strings.Split(line, ",")
	ints := make([]int, len(fields))
	for i, field := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
		}
		ints[i] = n
	}
	return ints, nil
}
