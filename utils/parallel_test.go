package utils

import (
	"context"
	"image"
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestGroupWorkParallelCoversEveryItemOnce(t *testing.T) {
	for _, tc := range []struct {
		workers, total int
	}{
		{1, 10},
		{3, 10},
		{4, 4},
		{8, 3},
		{5, 101},
	} {
		seen := make([]int, tc.total)
		var mu sync.Mutex
		var groups int
		err := GroupWorkParallelN(context.Background(), tc.workers, tc.total,
			func(numGroups int) { groups = numGroups },
			func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
				test.That(t, to-from, test.ShouldEqual, groupSize)
				return func(memberNum, workNum int) {
					mu.Lock()
					seen[workNum]++
					mu.Unlock()
				}, nil
			})
		test.That(t, err, test.ShouldBeNil)
		expectedGroups := tc.workers
		if expectedGroups > tc.total {
			expectedGroups = tc.total
		}
		test.That(t, groups, test.ShouldEqual, expectedGroups)
		for _, count := range seen {
			test.That(t, count, test.ShouldEqual, 1)
		}
	}
}

func TestGroupWorkParallelRangesAreContiguous(t *testing.T) {
	var mu sync.Mutex
	ranges := map[int][2]int{}
	err := GroupWorkParallelN(context.Background(), 3, 11, nil,
		func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			mu.Lock()
			ranges[groupNum] = [2]int{from, to}
			mu.Unlock()
			return nil, nil
		})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ranges, test.ShouldResemble, map[int][2]int{0: {0, 4}, 1: {4, 8}, 2: {8, 11}})
}

func TestGroupWorkParallelCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := GroupWorkParallel(ctx, 10, nil, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
		called = true
		return nil, nil
	})
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, called, test.ShouldBeFalse)
}

func TestParallelForEachPixel(t *testing.T) {
	size := image.Point{7, 5}
	seen := make([]int, size.X*size.Y)
	var mu sync.Mutex
	ParallelForEachPixel(size, func(x, y int) {
		mu.Lock()
		seen[y*size.X+x]++
		mu.Unlock()
	})
	for _, n := range seen {
		test.That(t, n, test.ShouldEqual, 1)
	}

	ParallelForEachPixel(image.Point{0, 3}, func(x, y int) {
		t.Fatal("no pixel to visit")
	})
}
