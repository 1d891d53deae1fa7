package dataprocess

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/test"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

func TestCreateTimestampFilename(t *testing.T) {
	timeStamp := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	filename := CreateTimestampFilename("/tmp/slam", "detector", ".pcd", timeStamp)
	test.That(t, filename, test.ShouldEqual, "/tmp/slam/detector_data_2024-03-01T12:30:45.0000Z.pcd")
}

func TestWritePCDToFile(t *testing.T) {
	dataDir := t.TempDir()
	filename := filepath.Join(dataDir, "map.pcd")

	pc := pointcloud.New()
	err := pc.Set(pointcloud.NewVector(1000, 2000, 0), pointcloud.NewBasicData())
	test.That(t, err, test.ShouldBeNil)

	err = WritePCDToFile(pc, filename)
	test.That(t, err, test.ShouldBeNil)

	//nolint:gosec
	contents, err := os.ReadFile(filename)
	test.That(t, err, test.ShouldBeNil)
	readPC, err := pointcloud.ReadPCD(bytes.NewReader(contents))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readPC.Size(), test.ShouldEqual, 1)
}

func TestAppendPoseToFile(t *testing.T) {
	dataDir := t.TempDir()
	filename := filepath.Join(dataDir, "trajectory.jsonl")
	timeStamp := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	pose := geometry.NewTransform2D(geometry.Vector2D{X: 1.5, Y: -2.25}, 0.5)
	err := AppendPoseToFile(pose, timeStamp, filename)
	test.That(t, err, test.ShouldBeNil)
	err = AppendPoseToFile(pose, timeStamp.Add(time.Second), filename)
	test.That(t, err, test.ShouldBeNil)

	//nolint:gosec
	f, err := os.Open(filename)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	var records []PoseRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record PoseRecord
		err = json.Unmarshal(scanner.Bytes(), &record)
		test.That(t, err, test.ShouldBeNil)
		records = append(records, record)
	}
	test.That(t, scanner.Err(), test.ShouldBeNil)
	test.That(t, len(records), test.ShouldEqual, 2)
	test.That(t, records[0].XM, test.ShouldEqual, 1.5)
	test.That(t, records[0].YM, test.ShouldEqual, -2.25)
	test.That(t, records[0].ThetaRad, test.ShouldEqual, 0.5)
	test.That(t, records[0].Time, test.ShouldEqual, "2024-03-01T12:30:45.0000Z")
	test.That(t, records[1].Time, test.ShouldEqual, "2024-03-01T12:30:46.0000Z")
}
