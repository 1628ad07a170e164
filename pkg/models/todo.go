package models

// TodoStatus is the lifecycle state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoFailed     TodoStatus = "failed"
	TodoSkipped    TodoStatus = "skipped"
)

// ValidTodoStatus reports whether s is one of the known states.
func ValidTodoStatus(s TodoStatus) bool {
	switch s {
	case TodoPending, TodoInProgress, TodoCompleted, TodoFailed, TodoSkipped:
		return true
	}
	return false
}

// TodoItem is one node of the plan tree the model maintains through the
// todo tools. Subtasks nest arbitrarily deep.
type TodoItem struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Status   TodoStatus  `json:"status"`
	Subtasks []*TodoItem `json:"subtasks,omitempty"`
}

// FindTodo walks the tree depth-first and returns the item with the given
// id, or nil.
func FindTodo(items []*TodoItem, id string) *TodoItem {
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.ID == id {
			return item
		}
		if found := FindTodo(item.Subtasks, id); found != nil {
			return found
		}
	}
	return nil
}
