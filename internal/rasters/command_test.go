package rasters_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/geodetect/internal/apiclient"
	"github.com/temirov/geodetect/internal/rasters"
	"github.com/temirov/geodetect/internal/utils"
)

type stubOperations struct {
	listedFolders   []string
	listResult      []rasters.Raster
	uploadRequests  []rasters.UploadRequest
	uploadResult    apiclient.Identifier
	uploadError     error
	editedRasters   []apiclient.Identifier
	editRequests    []rasters.EditRequest
	deletedRasters  []apiclient.Identifier
	detectionAreas  [][2]string
	waitedRasters   []apiclient.Identifier
	retrievedRaster rasters.Raster
}

func (operations *stubOperations) List(_ context.Context, folderID string) ([]rasters.Raster, error) {
	operations.listedFolders = append(operations.listedFolders, folderID)
	return operations.listResult, nil
}

func (operations *stubOperations) Get(_ context.Context, rasterID apiclient.Identifier) (rasters.Raster, error) {
	raster := operations.retrievedRaster
	raster.ID = rasterID
	return raster, nil
}

func (operations *stubOperations) Edit(_ context.Context, rasterID apiclient.Identifier, request rasters.EditRequest) error {
	operations.editedRasters = append(operations.editedRasters, rasterID)
	operations.editRequests = append(operations.editRequests, request)
	return nil
}

func (operations *stubOperations) Delete(_ context.Context, rasterID apiclient.Identifier) error {
	operations.deletedRasters = append(operations.deletedRasters, rasterID)
	return nil
}

func (operations *stubOperations) Upload(_ context.Context, request rasters.UploadRequest) (apiclient.Identifier, error) {
	operations.uploadRequests = append(operations.uploadRequests, request)
	return operations.uploadResult, operations.uploadError
}

func (operations *stubOperations) SetDetectionAreasFromFile(_ context.Context, rasterID apiclient.Identifier, filePath string) error {
	operations.detectionAreas = append(operations.detectionAreas, [2]string{rasterID.String(), filePath})
	return nil
}

func (operations *stubOperations) WaitUntilReady(_ context.Context, rasterID apiclient.Identifier) (rasters.Raster, error) {
	operations.waitedRasters = append(operations.waitedRasters, rasterID)
	return rasters.Raster{ID: rasterID, Status: rasters.StatusReady}, nil
}

type linkedRaster struct {
	detectorID apiclient.Identifier
	rasterID   apiclient.Identifier
}

type stubLinker struct {
	links []linkedRaster
}

func (linker *stubLinker) AddRaster(_ context.Context, detectorID apiclient.Identifier, rasterID apiclient.Identifier) error {
	linker.links = append(linker.links, linkedRaster{detectorID: detectorID, rasterID: rasterID})
	return nil
}

func buildRasterCommands(testInstance *testing.T, operations *stubOperations, linker *stubLinker) rasters.Commands {
	testInstance.Helper()

	builder := rasters.CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.NewNop() },
		ServiceProvider: func(*zap.Logger) (rasters.Operations, error) {
			return operations, nil
		},
		DetectorLinkerProvider: func(*zap.Logger) (rasters.DetectorLinker, error) {
			return linker, nil
		},
		OutputFormatProvider: func() utils.OutputFormat { return utils.OutputFormatJSON },
	}
	return builder.Build()
}

func executeCommand(command *cobra.Command, arguments ...string) (string, error) {
	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(arguments)
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetContext(context.Background())
	executionError := command.Execute()
	return outputBuffer.String(), executionError
}

func TestCreateRasterCommand(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name              string
		arguments         []string
		expectedRequest   rasters.UploadRequest
		expectedLinks     []linkedRaster
		expectedWaits     int
		expectedErrorText string
	}{
		{
			name:              "requires_path",
			arguments:         []string{},
			expectedErrorText: "path",
		},
		{
			name:            "path_only",
			arguments:       []string{"my_path_to_tiff"},
			expectedRequest: rasters.UploadRequest{FilePath: "my_path_to_tiff", CheckScope: rasters.CloneCheckScopeAccount},
		},
		{
			name:      "adds_to_detectors",
			arguments: []string{"my_path_to_tiff", "--name", "beacon", "--folder", "eggs", "--detector", "a", "--detector", "b,c"},
			expectedRequest: rasters.UploadRequest{
				FilePath:   "my_path_to_tiff",
				Name:       "beacon",
				FolderID:   "eggs",
				CheckScope: rasters.CloneCheckScopeAccount,
			},
			expectedLinks: []linkedRaster{
				{detectorID: "a", rasterID: "spam"},
				{detectorID: "b", rasterID: "spam"},
				{detectorID: "c", rasterID: "spam"},
			},
		},
		{
			name:      "clone_and_wait_flags",
			arguments: []string{"scene.tif", "--identity-key", "k1", "--check-existing", "folder", "--folder", "f", "--multispectral", "--captured-at", "2020-01-10T12:34:56Z", "--wait-ready"},
			expectedRequest: rasters.UploadRequest{
				FilePath:      "scene.tif",
				FolderID:      "f",
				CapturedAt:    "2020-01-10T12:34:56Z",
				IdentityKey:   "k1",
				Multispectral: true,
				CheckScope:    rasters.CloneCheckScopeFolder,
			},
			expectedWaits: 1,
		},
		{
			name:              "rejects_unknown_scope",
			arguments:         []string{"scene.tif", "--check-existing", "spam"},
			expectedErrorText: "spam",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			operations := &stubOperations{uploadResult: "spam"}
			linker := &stubLinker{}
			commands := buildRasterCommands(subTest, operations, linker)

			output, executionError := executeCommand(commands.Create, testCase.arguments...)
			if len(testCase.expectedErrorText) > 0 {
				require.Error(subTest, executionError)
				require.Contains(subTest, executionError.Error(), testCase.expectedErrorText)
				require.Empty(subTest, operations.uploadRequests)
				return
			}

			require.NoError(subTest, executionError)
			require.Equal(subTest, []rasters.UploadRequest{testCase.expectedRequest}, operations.uploadRequests)
			require.Equal(subTest, testCase.expectedLinks, linker.links)
			require.Len(subTest, operations.waitedRasters, testCase.expectedWaits)

			var result rasters.UploadResult
			require.NoError(subTest, json.Unmarshal([]byte(output), &result))
			require.Equal(subTest, apiclient.Identifier("spam"), result.RasterID)
		})
	}
}

func TestCreateRasterCommandSkipsLinksWhenUploadFails(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubOperations{uploadError: errors.New("storage rejected")}
	linker := &stubLinker{}
	commands := buildRasterCommands(testInstance, operations, linker)

	_, executionError := executeCommand(commands.Create, "scene.tif", "--detector", "d1")
	require.ErrorContains(testInstance, executionError, "storage rejected")
	require.Empty(testInstance, linker.links)
}

func TestListRastersCommandRendersOutput(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name           string
		outputFormat   utils.OutputFormat
		expectedOutput string
	}{
		{
			name:           "json",
			outputFormat:   utils.OutputFormatJSON,
			expectedOutput: "[\n  {\n    \"id\": \"40\",\n    \"name\": \"raster1\",\n    \"status\": \"ready\"\n  }\n]\n",
		},
		{
			name:           "yaml",
			outputFormat:   utils.OutputFormatYAML,
			expectedOutput: "- id: \"40\"\n  name: raster1\n  status: ready\n",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Parallel()

			operations := &stubOperations{listResult: []rasters.Raster{{ID: "40", Name: "raster1", Status: rasters.StatusReady}}}
			builder := rasters.CommandBuilder{
				ServiceProvider:      func(*zap.Logger) (rasters.Operations, error) { return operations, nil },
				OutputFormatProvider: func() utils.OutputFormat { return testCase.outputFormat },
			}
			commands := builder.Build()

			output, executionError := executeCommand(commands.List, "--folder", "f1")
			require.NoError(subTest, executionError)
			require.Equal(subTest, testCase.expectedOutput, output)
			require.Equal(subTest, []string{"f1"}, operations.listedFolders)
		})
	}
}

func TestEditRasterCommandSendsChangedFlagsOnly(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubOperations{}
	commands := buildRasterCommands(testInstance, operations, &stubLinker{})

	_, executionError := executeCommand(commands.Edit, "42", "--name", "renamed", "--identity-key", "")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, []apiclient.Identifier{"42"}, operations.editedRasters)

	request := operations.editRequests[0]
	require.NotNil(testInstance, request.Name)
	require.Equal(testInstance, "renamed", *request.Name)
	require.NotNil(testInstance, request.IdentityKey)
	require.Empty(testInstance, *request.IdentityKey)
	require.Nil(testInstance, request.FolderID)
	require.Nil(testInstance, request.CapturedAt)
}

func TestRasterIdentifierCommands(testInstance *testing.T) {
	testInstance.Parallel()

	operations := &stubOperations{retrievedRaster: rasters.Raster{Name: "raster1"}}
	commands := buildRasterCommands(testInstance, operations, &stubLinker{})

	_, deleteError := executeCommand(commands.Delete, "42")
	require.NoError(testInstance, deleteError)
	require.Equal(testInstance, []apiclient.Identifier{"42"}, operations.deletedRasters)

	_, missingError := executeCommand(commands.Delete)
	require.ErrorContains(testInstance, missingError, "raster")

	output, getError := executeCommand(commands.Get, "7")
	require.NoError(testInstance, getError)
	require.JSONEq(testInstance, `{"id":"7","name":"raster1"}`, output)

	_, areaError := executeCommand(commands.CreateDetectionArea, "areas.geojson", "42")
	require.NoError(testInstance, areaError)
	require.Equal(testInstance, [][2]string{{"42", "areas.geojson"}}, operations.detectionAreas)

	_, missingPathError := executeCommand(commands.CreateDetectionArea)
	require.ErrorContains(testInstance, missingPathError, "path")
}
