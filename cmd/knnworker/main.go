package main

import (
	"github.com/ssargent/freyja-knn/cmd/knnworker/cmd"
	"github.com/ssargent/freyja-knn/pkg/di"
)

func main() {
	container := di.NewContainer()
	cmd.SetContainer(container)
	cmd.Execute()
}
