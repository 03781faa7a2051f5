package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				start_task_ids TEXT[] NOT NULL DEFAULT '{}',
				form_id TEXT NOT NULL DEFAULT '',
				is_published BOOLEAN NOT NULL DEFAULT false,
				meta JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE tasks (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL CHECK (type IN ('simple', 'complete_workflow_form', 'complete_task_form')),
				form_id TEXT NOT NULL DEFAULT '',
				address_groups TEXT NOT NULL DEFAULT '',
				is_multiple_instance BOOLEAN NOT NULL DEFAULT false,
				lead_time BIGINT NOT NULL DEFAULT 0,
				meta JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE flows (
				id TEXT PRIMARY KEY,
				next TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE task_flows (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				task_id TEXT NOT NULL REFERENCES tasks(id),
				flow_id TEXT NOT NULL REFERENCES flows(id),
				UNIQUE (workflow_id, task_id, flow_id)
			);

			CREATE INDEX idx_task_flows_workflow_task ON task_flows(workflow_id, task_id);
		`,
		2: `
			-- Forms, documents and answers
			CREATE TABLE forms (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				question_ids TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE questions (
				id TEXT PRIMARY KEY,
				label TEXT NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				is_required BOOLEAN NOT NULL DEFAULT false,
				options TEXT[] NOT NULL DEFAULT '{}',
				row_form_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE documents (
				id UUID PRIMARY KEY,
				form_id TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE answers (
				id UUID PRIMARY KEY,
				document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				question_id TEXT NOT NULL,
				value JSONB,
				row_document_ids TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (document_id, question_id)
			);

			CREATE INDEX idx_answers_question_value ON answers(question_id, value);
		`,
		3: `
			-- Cases and work items
			CREATE TABLE cases (
				id UUID PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'canceled')),
				meta JSONB NOT NULL DEFAULT '{}',
				document_id UUID REFERENCES documents(id),
				parent_work_item_id UUID,
				created_by_user TEXT NOT NULL DEFAULT '',
				closed_by_user TEXT NOT NULL DEFAULT '',
				closed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_cases_status ON cases(status);
			CREATE INDEX idx_cases_meta ON cases USING GIN (meta);

			CREATE TABLE work_items (
				id UUID PRIMARY KEY,
				case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
				task_id TEXT NOT NULL REFERENCES tasks(id),
				status VARCHAR(50) NOT NULL CHECK (status IN ('ready', 'completed', 'skipped', 'canceled')),
				child_case_id UUID,
				document_id UUID REFERENCES documents(id),
				addressed_groups TEXT[] NOT NULL DEFAULT '{}',
				assigned_users TEXT[] NOT NULL DEFAULT '{}',
				meta JSONB NOT NULL DEFAULT '{}',
				deadline TIMESTAMP WITH TIME ZONE,
				created_by_user TEXT NOT NULL DEFAULT '',
				closed_by_user TEXT NOT NULL DEFAULT '',
				closed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_work_items_case_task ON work_items(case_id, task_id);
			CREATE INDEX idx_work_items_status ON work_items(status);
			CREATE INDEX idx_work_items_addressed_groups ON work_items USING GIN (addressed_groups);
			CREATE INDEX idx_work_items_created_at ON work_items(created_at);
		`,
	}
}
