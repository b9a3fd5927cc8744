// Package utils contains small concurrency helpers shared by the mapper packages.
package utils

import (
	"context"
	"image"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated group count.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel parallelizes the given size of work over ParallelFactor workers.
func GroupWorkParallel(ctx context.Context, totalSize int, before BeforeParallelGroupWorkFunc, groupWork GroupWorkFunc) error {
	return GroupWorkParallelN(ctx, ParallelFactor, totalSize, before, groupWork)
}

// GroupWorkParallelN splits [0, totalSize) into at most workers contiguous, non-overlapping ranges
// and runs each range on its own goroutine. Within a range, work items run in increasing order.
// The first totalSize%numGroups groups get one extra item.
func GroupWorkParallelN(
	ctx context.Context,
	workers, totalSize int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if totalSize <= 0 {
		return nil
	}
	numGroups := workers
	if numGroups <= 0 {
		numGroups = 1
	}
	if numGroups > totalSize {
		numGroups = totalSize
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups

	if before != nil {
		before(numGroups)
	}

	var wait sync.WaitGroup
	wait.Add(numGroups)
	from := 0
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		thisGroupSize := groupSize
		if groupNum < extra {
			thisGroupSize++
		}
		groupNum, groupFrom, groupTo := groupNum, from, from+thisGroupSize
		from = groupTo
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			memberWork, groupWorkDone := groupWork(groupNum, groupTo-groupFrom, groupFrom, groupTo)
			if memberWork != nil {
				memberNum := 0
				for workNum := groupFrom; workNum < groupTo; workNum++ {
					memberWork(memberNum, workNum)
					memberNum++
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		})
	}
	wait.Wait()
	return nil
}

// ParallelForEachPixel calls f once for every [x, y] position of an image of the given size. Rows
// are split among ParallelFactor goroutines.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	// never canceled, so there is no error
	_ = GroupWorkParallel(context.Background(), size.Y, nil, func(_, _, _, _ int) (MemberWorkFunc, GroupWorkDoneFunc) {
		return func(_, y int) {
			for x := 0; x < size.X; x++ {
				f(x, y)
			}
		}, nil
	})
}
