package compose

import (
	"context"

	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
)

// FFProber implements Prober with ffprobe.
type FFProber struct {
	Binary string
}

func (p FFProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	result, err := ffprobe.Inspect(ctx, p.Binary, path)
	if err != nil {
		return 0, 0, err
	}
	width, height, ok := result.Dimensions()
	if !ok {
		return 0, 0, services.Wrap(services.ErrIO, stageName, "probe", "no video stream in "+path, nil)
	}
	return width, height, nil
}
